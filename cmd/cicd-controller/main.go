// Package main is the entry point for cicd-controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "cicd-controller"

func main() {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Webhook-driven config sync and Kubernetes deploy controller",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
