package livetiming

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// StaticFiles is the dashboard page and its assets.
func StaticFiles() http.FileSystem {
	sub, err := fs.Sub(staticFiles, "static")

	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}
