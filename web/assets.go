// Package web provides the embedded browser console.
//
// The static/ directory is embedded at build time. During development,
// if static/ exists on the filesystem, it will be used instead, so page
// edits show up without a rebuild.
package web

import (
	"embed"
	"io/fs"
	"os"
)

// Page names served by the control server.
const (
	IndexPage  = "index.html"
	ConfigPage = "config.html"
)

//go:embed static/*
var assets embed.FS

// GetAssets returns a filesystem containing the console pages.
// If devPath names an existing directory it is served live; otherwise the
// embedded copy is used.
//
// If devPath is empty, it defaults to "./web/static" (relative to the
// working directory).
func GetAssets(devPath string) fs.FS {
	if devPath == "" {
		devPath = "./web/static"
	}

	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}

	return Embedded()
}

// Embedded returns the embedded pages regardless of the filesystem.
func Embedded() fs.FS {
	subFS, err := fs.Sub(assets, "static")
	if err != nil {
		panic("failed to access embedded web assets: " + err.Error())
	}
	return subFS
}
