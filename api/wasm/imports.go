//go:build wasm

package wasm

// Pointers and lengths are int32: guest memory is 32-bit.

//go:wasmimport std destroy
func stdDestroy(handle int32)

//go:wasmimport std copy
func stdCopy(handle int32) int32

//go:wasmimport std create_null
func stdCreateNull() int32

//go:wasmimport std create_int
func stdCreateInt(value int64) int32

//go:wasmimport std create_float
func stdCreateFloat(value float32) int32

//go:wasmimport std create_string
func stdCreateString(ptr, length int32) int32

//go:wasmimport std create_bool
func stdCreateBool(value int32) int32

//go:wasmimport std create_array
func stdCreateArray() int32

//go:wasmimport std create_object
func stdCreateObject() int32

//go:wasmimport std typeof
func stdTypeof(handle int32) int32

//go:wasmimport std string_len
func stdStringLen(handle int32) int32

//go:wasmimport std read_string
func stdReadString(handle, buf, size int32)

//go:wasmimport std read_int
func stdReadInt(handle int32) int64

//go:wasmimport std read_float
func stdReadFloat(handle int32) float64

//go:wasmimport std read_bool
func stdReadBool(handle int32) int32

//go:wasmimport std object_get
func stdObjectGet(handle, key, keyLen int32) int32

//go:wasmimport std object_set
func stdObjectSet(handle, key, keyLen, value int32)

//go:wasmimport std array_len
func stdArrayLen(handle int32) int32

//go:wasmimport std array_get
func stdArrayGet(handle, index int32) int32

//go:wasmimport std array_append
func stdArrayAppend(handle, value int32)

//go:wasmimport env print
func envPrint(ptr, length int32)

//go:wasmimport json json_parse
func jsonParse(ptr, length int32) int32

//go:wasmimport html scraper_parse
func htmlParse(ptr, length int32) int32

//go:wasmimport html scraper_select
func htmlSelect(handle, selector, selectorLen int32) int32

//go:wasmimport html scraper_attr
func htmlAttr(handle, name, nameLen int32) int32

//go:wasmimport html scraper_text
func htmlText(handle int32) int32

//go:wasmimport html scraper_array_size
func htmlArraySize(handle int32) int32

//go:wasmimport html scraper_array_get
func htmlArrayGet(handle, index int32) int32

//go:wasmimport html scraper_free
func htmlFree(handle int32)

//go:wasmimport net init
func netInit(method int32) int32

//go:wasmimport net send
func netSend(handle int32) int32

//go:wasmimport net close
func netClose(handle int32)

//go:wasmimport net set_url
func netSetURL(handle, url, urlLen int32)

//go:wasmimport net set_header
func netSetHeader(handle, key, keyLen, value, valueLen int32)

//go:wasmimport net set_body
func netSetBody(handle, body, bodyLen int32)

//go:wasmimport net get_data_size
func netGetDataSize(handle int32) int32

//go:wasmimport net get_data
func netGetData(handle, buf, size int32) int32

//go:wasmimport net get_status_code
func netGetStatusCode(handle int32) int32

//go:wasmimport net json
func netJSON(handle int32) int32

//go:wasmimport net html
func netHTML(handle int32) int32

//go:wasmimport defaults get
func defaultsGet(key, keyLen int32) int32

//go:wasmimport defaults set
func defaultsSet(key, keyLen, value int32)

//go:wasmimport aidoku manga
func aidokuManga(
	id, idLen, cover, coverLen, title, titleLen,
	author, authorLen, artist, artistLen, description, descriptionLen,
	url, urlLen, tags, tagLens, tagCount, status, nsfw, viewer int32,
) int32

//go:wasmimport aidoku chapter
func aidokuChapter(
	id, idLen, name, nameLen int32, volume, chapter float32, dateUploaded float64,
	scanlator, scanlatorLen, url, urlLen, lang, langLen int32,
) int32

//go:wasmimport aidoku page
func aidokuPage(index, imageURL, imageURLLen, base64, base64Len, text, textLen int32) int32

//go:wasmimport aidoku manga_result
func aidokuMangaResult(items, itemsLen, hasMore int32) int32
