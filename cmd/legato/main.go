package main

import (
	"os"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
