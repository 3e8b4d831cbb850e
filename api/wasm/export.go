//go:build wasm

package wasm

// This file defines the export interface for source plugins.
// Sources implement these functions using //go:wasmexport.
//
// Every parameter below is a std handle owned by the host. The host drops
// it after the call returns; copy values out or std.copy them to keep them.
// Records built through the aidoku namespace during a call are collected by
// the host in creation order, and the i32 a function returns is an index
// into that order.

// Exported functions sources may implement. Only get_manga_list is
// required.
//
// //go:wasmexport initialize
// func initialize()
//
// //go:wasmexport get_manga_list
// func getMangaList(filters, page int32) int32
//	Returns the index of a manga_result, or -1 to return every manga built
//	during the call as a final page.
//
// //go:wasmexport get_manga_listing
// func getMangaListing(listing, page int32) int32
//	listing is an object with "name" and "flags". Returns as get_manga_list.
//
// //go:wasmexport get_manga_details
// func getMangaDetails(manga int32) int32
//	Returns the index of the detailed manga. Out of range picks the last
//	manga built.
//
// //go:wasmexport get_chapter_list
// func getChapterList(manga int32) int32
//	Every chapter built is returned in order; the result is ignored.
//
// //go:wasmexport get_page_list
// func getPageList(chapter int32) int32
//	Every page built is returned in order; the result is ignored.
//
// //go:wasmexport modify_image_request
// func modifyImageRequest(request int32)
//	request is a net handle already carrying the image URL, user agent and
//	cookies. Change it with the net setters; do not send or close it.
//
// //go:wasmexport handle_url
// func handleURL(url int32) int32
//	Returns the index of the manga the URL points at. A chapter built in
//	the same call narrows the link to that chapter.
//
// //go:wasmexport handle_notification
// func handleNotification(notification int32)
