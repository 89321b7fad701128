package receipt

import _ "embed"

//go:embed static/login.html
var loginHTML []byte

//go:embed static/upload.html
var uploadHTML []byte

//go:embed static/app.css
var appCSS []byte

//go:embed static/app.js
var appJS []byte
