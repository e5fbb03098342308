package main

import "github.com/DrHuaSH/web-browser-downloader/internal/cli"

func main() {
	cli.Execute()
}
