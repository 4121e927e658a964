package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/tui/app"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/tui/client"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	wsURL string
	token string
)

var rootCmd = &cobra.Command{
	Use:          "kiosk-tui",
	Short:        "Terminal display for the information point kiosk",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed := client.NewWSClient(wsURL, token)
		control := client.NewHTTPClient(deriveHTTPBase(wsURL), token)

		p := tea.NewProgram(app.New(feed, control), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the kiosk display feed")
	rootCmd.Flags().StringVar(&token, "token", "", "Auth token (if the kiosk requires it)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws into http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
