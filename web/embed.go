// Package web 页面模板与静态资源，编译进二进制
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Templates 解析全部页面模板
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs()).ParseFS(assets, "templates/*.html")
}

// Static 静态资源文件系统（根目录即 static/）
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Funcs 模板函数
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
		"fileURL": func(storedPath string) string {
			return "/files/" + storedPath
		},
		"baseName": path.Base,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"humanSize": func(n int64) string {
			const unit = 1024
			if n < unit {
				return strconv.FormatInt(n, 10) + " B"
			}
			div, exp := int64(unit), 0
			for m := n / unit; m >= unit; m /= unit {
				div *= unit
				exp++
			}
			return strconv.FormatInt(n/div, 10) + " " + string("KMGT"[exp]) + "B"
		},
	}
}
