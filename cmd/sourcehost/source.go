package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/service"
)

// imageRequest is the printable form of a prepared image request.
type imageRequest struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

func newSourceCmds() []*cobra.Command {
	search := &cobra.Command{
		Use:   "search <plugin> [query]",
		Short: "Search a source's catalog",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			var filters []*domain.Filter
			if len(args) == 2 {
				filters = append(filters, &domain.Filter{Kind: domain.FilterTitle, Name: "Title", Text: args[1]})
			}
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				res, err := src.GetMangaList(ctx, filters, page)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), res)
			})
		},
	}
	search.Flags().Int("page", 1, "Result page, starting at 1")

	listing := &cobra.Command{
		Use:   "listing <plugin> <name>",
		Short: "Show a page of one of a source's listings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				res, err := src.GetMangaListing(ctx, findListing(src.Listings(), args[1]), page)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), res)
			})
		},
	}
	listing.Flags().Int("page", 1, "Result page, starting at 1")

	details := &cobra.Command{
		Use:   "details <plugin> <manga-id>",
		Short: "Fetch the details of a manga",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				m, err := src.GetMangaDetails(ctx, &domain.Manga{SourceID: args[0], ID: args[1]})
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), m)
			})
		},
	}

	chapters := &cobra.Command{
		Use:   "chapters <plugin> <manga-id>",
		Short: "List the chapters of a manga",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				list, err := src.GetChapterList(ctx, &domain.Manga{SourceID: args[0], ID: args[1]})
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), list)
			})
		},
	}

	pages := &cobra.Command{
		Use:   "pages <plugin> <manga-id> <chapter-id>",
		Short: "List the pages of a chapter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				list, err := src.GetPageList(ctx, &domain.Chapter{SourceID: args[0], MangaID: args[1], ID: args[2]})
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), list)
			})
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <plugin> <url>",
		Short: "Resolve a web URL to a manga or chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				link, err := src.HandleURL(ctx, args[1])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), link)
			})
		},
	}

	image := &cobra.Command{
		Use:   "image <plugin> <url>",
		Short: "Show the request a source would make for an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				req, err := src.GetImageRequest(ctx, args[1])
				if err != nil {
					return err
				}
				out := imageRequest{Method: req.Method, URL: req.URL, Headers: make(map[string]string)}
				for k := range req.Header {
					out.Headers[k] = req.Header.Get(k)
				}
				return printYAML(cmd.OutOrStdout(), out)
			})
		},
	}

	notify := &cobra.Command{
		Use:   "notify <plugin> <notification>",
		Short: "Deliver a notification to a source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSource(cmd, args[0], func(ctx context.Context, src *service.Source) error {
				return src.HandleNotification(ctx, args[1])
			})
		},
	}

	return []*cobra.Command{search, listing, details, chapters, pages, resolve, image, notify}
}

// findListing returns the declared listing called name. Undeclared names
// are passed through, since some plugins accept listings they do not list.
func findListing(listings []domain.Listing, name string) domain.Listing {
	for _, l := range listings {
		if l.Name == name {
			return l
		}
	}
	return domain.Listing{Name: name}
}
