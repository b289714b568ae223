// Package main is the entry point for the Ansible log analysis service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm"
)

func main() {
	alm.NewApp().Run()
}
