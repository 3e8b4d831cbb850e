// Package wasm is the guest side of the source plugin ABI: bindings for the
// host namespaces and the export contract a source implements. It only
// builds for GOOS=wasip1 GOARCH=wasm; compile plugins with
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o main.wasm
//
// and list the manifest capabilities for every namespace the plugin
// imports. Run `sourcehost abi` for the host's current function table.
package wasm
