// smbclient browses a single SMB share and copies files between the share
// and a local folder.
//
// Build with version information:
//
//	go build -ldflags "-X github.com/rainforce/smbclient/internal/version.Version=v1.0.0 \
//	  -X github.com/rainforce/smbclient/internal/version.BuildTime=$(date -u +%Y-%m-%d)" ./cmd/smbclient
package main

import (
	"os"

	"github.com/rainforce/smbclient/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
