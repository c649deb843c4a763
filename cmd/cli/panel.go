package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var (
	readoutCmd = &cobra.Command{
		Use:   "readout <host>",
		Short: "Print the device's readouts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return readout(cmd.Context(), cmd.OutOrStdout(), args[0], rawJSON)
		},
	}

	pressCmd = &cobra.Command{
		Use:   "press <host> <id>",
		Short: "Press one of the device's buttons",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return press(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}

	rawJSON bool
)

func init() {
	readoutCmd.Flags().BoolVar(&rawJSON, "json", false, "print the raw JSON object")
	rootCmd.AddCommand(readoutCmd, pressCmd)
}

func get(ctx context.Context, rawURL string) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := httpClient(timeout).Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, body, err
}

func readout(ctx context.Context, w io.Writer, host string, raw bool) error {
	status, body, err := get(ctx, baseURL(host)+"/readout")
	if err != nil {
		return fmt.Errorf("readout: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("readout: HTTP %d", status)
	}
	if raw {
		fmt.Fprintln(w, strings.TrimSpace(string(body)))
		return nil
	}

	values, err := decodeReadouts(body)
	if err != nil {
		return fmt.Errorf("readout: %w", err)
	}
	for _, v := range values {
		fmt.Fprintf(w, "%s: %s\n", v[0], v[1])
	}
	return nil
}

// decodeReadouts parses the readout object keeping the device's order.
func decodeReadouts(body []byte) ([][2]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("readout is not a JSON object")
	}

	var values [][2]string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		label, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", label, err)
		}
		values = append(values, [2]string{label, value})
	}
	return values, nil
}

func press(ctx context.Context, w io.Writer, host, id string) error {
	status, body, err := get(ctx, baseURL(host)+"/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("press: %w", err)
	}
	switch status {
	case http.StatusOK:
		fmt.Fprintln(w, strings.TrimSpace(string(body)))
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("press: no button %q", id)
	default:
		return fmt.Errorf("press: HTTP %d", status)
	}
}
