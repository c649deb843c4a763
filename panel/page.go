package panel

import (
	"html"
	"strconv"
)

const pageHead = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>`

const pageStyle = `</title>
<style>body{font-family:sans-serif;margin:1em auto;max-width:40em;padding:0 1em}
table{border-collapse:collapse}td{padding:.2em .8em}button{margin:.2em;padding:.4em 1em}</style>
</head><body>
<h1>`

const uploadForm = `<h2>Firmware update</h2>
<form method="POST" action="/update" enctype="multipart/form-data">
<input type="file" name="update" accept=".bin"> <input type="submit" value="Update">
</form>
</body></html>
`

// AppendPage appends the full status page to dst. The readout section is
// present only when readouts exist, likewise the button section; the
// upload form is always present.
func (p *Panel) AppendPage(dst []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := html.EscapeString(p.name)
	dst = append(dst, pageHead...)
	dst = append(dst, name...)
	dst = append(dst, pageStyle...)
	dst = append(dst, name...)
	dst = append(dst, "</h1>\n"...)
	if len(p.readouts) > 0 {
		dst = append(dst, p.readoutHTML...)
	}
	if len(p.buttons) > 0 {
		dst = append(dst, "<h2>Actions</h2>\n<div>\n"...)
		dst = append(dst, p.buttonHTML...)
		dst = append(dst, "</div>\n"...)
	}
	return append(dst, uploadForm...)
}

// renderReadouts rebuilds the readout table and the script that fills it
// from /readout once a second. Cell i is named readout-i.
func renderReadouts(dst []byte, items []readout) []byte {
	dst = append(dst, "<h2>Status</h2>\n<table>\n"...)
	for i, r := range items {
		dst = append(dst, "<tr><td>"...)
		dst = append(dst, html.EscapeString(r.label)...)
		dst = append(dst, `</td><td id="readout-`...)
		dst = strconv.AppendInt(dst, int64(i), 10)
		dst = append(dst, `"></td></tr>`...)
		dst = append(dst, '\n')
	}
	dst = append(dst, "</table>\n<script>\nfunction poll(){fetch('/readout').then(function(r){return r.json()}).then(function(d){\n"...)
	for i, r := range items {
		dst = append(dst, "document.getElementById('readout-"...)
		dst = strconv.AppendInt(dst, int64(i), 10)
		dst = append(dst, "').textContent=d["...)
		dst = AppendString(dst, r.label)
		dst = append(dst, "];\n"...)
	}
	return append(dst, "})}\npoll();setInterval(poll,1000);\n</script>\n"...)
}

// appendButton appends one button. ids are validated URL-safe so they go
// into the markup unescaped.
func appendButton(dst []byte, b button) []byte {
	dst = append(dst, `<button id="`...)
	dst = append(dst, b.id...)
	dst = append(dst, `" onclick="fetch('/`...)
	dst = append(dst, b.id...)
	dst = append(dst, `')">`...)
	dst = append(dst, html.EscapeString(b.label)...)
	return append(dst, "</button>\n"...)
}
