package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/udpmgrd/internal/netio"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

var errUnsupportedFormat = errors.New("unsupported output format")

func endpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Inspect and manage udpmgrd endpoints",
	}
	cmd.AddCommand(endpointsListCmd())
	cmd.AddCommand(endpointsShutdownCmd())
	return cmd
}

func endpointsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open endpoints",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			endpoints, err := fetchEndpoints()
			if err != nil {
				return err
			}
			out, err := formatEndpoints(endpoints, outputFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func endpointsShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown <fd>",
		Short: "Shut down an endpoint by file descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return shutdownEndpoint(args[0])
		},
	}
}

func fetchEndpoints() ([]netio.EndpointSnapshot, error) {
	resp, err := client.Get(controlURL("/v1/endpoints"))
	if err != nil {
		return nil, fmt.Errorf("request endpoints: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var endpoints []netio.EndpointSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return endpoints, nil
}

func shutdownEndpoint(fd string) error {
	req, err := http.NewRequest(http.MethodPost, controlURL("/v1/endpoints/"+fd+"/shutdown"), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request shutdown: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("shutdown failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func formatEndpoints(endpoints []netio.EndpointSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(endpoints, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal endpoints: %w", err)
		}
		return string(b), nil
	case formatTable:
		return formatEndpointsTable(endpoints), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatEndpointsTable(endpoints []netio.EndpointSnapshot) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FD\tROLE\tLOCAL\tREMOTE")
	for _, ep := range endpoints {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ep.FD, ep.Role, ep.Local, ep.Remote)
	}
	tw.Flush()
	return sb.String()
}
