package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/sentinel/pkg/client"
)

func addClientFlags(cmd *cobra.Command, flags *ClientFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080/api", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
}

func newAPIClient(flags *ClientFlags) *client.Client {
	return client.New(client.Config{
		BaseURL: flags.APIUrl,
		Timeout: flags.APITimeout,
	})
}
