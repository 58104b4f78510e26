// Command inspect prints the /stats document of a running pairchat server.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pairchat/observability"

	"github.com/goccy/go-json"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	snapshot, err := fetchStats(ctx, http.DefaultClient, cfg.ServerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to fetch stats: %v\n", err)
		os.Exit(1)
	}
	render(os.Stdout, snapshot, cfg.Colours)
}

func fetchStats(ctx context.Context, client *http.Client, baseURL string) (observability.Snapshot, error) {
	var snapshot observability.Snapshot
	url := strings.TrimRight(baseURL, "/") + "/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snapshot, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return snapshot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snapshot, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("decode stats: %w", err)
	}
	return snapshot, nil
}

// painter renders text with a style, or leaves it untouched when colours are off.
type painter bool

func (p painter) paint(text string, opts ...color.Color) string {
	if !p {
		return text
	}
	return color.New(opts...).Render(text)
}

func render(w io.Writer, s observability.Snapshot, colours bool) {
	p := painter(colours)
	status := p.paint(s.Status, color.FgGreen)
	if s.Status != "ok" {
		status = p.paint(s.Status, color.FgRed)
	}
	fmt.Fprintf(w, "%s %s mode=%s uptime=%s\n\n",
		p.paint("pairchat", color.FgCyan), status, s.Mode, (time.Duration(s.UptimeSec) * time.Second).String())

	section(w, p, "Core", [][]string{
		{"sessions", fmt.Sprint(s.Core.Sessions)},
		{"tombstones", fmt.Sprint(s.Core.Tombstones)},
		{"conversations", fmt.Sprint(s.Core.Conversations)},
		{"messages", fmt.Sprint(s.Core.Messages)},
		{"censored", fmt.Sprint(s.Core.Censored)},
	})

	sampled := "never"
	if s.Process.SampledAt > 0 {
		sampled = time.UnixMilli(s.Process.SampledAt).Format("15:04:05")
	}
	section(w, p, "Process", [][]string{
		{"rss", fmt.Sprintf("%.1f MB", float64(s.Process.RSSBytes)/1024/1024)},
		{"cpu", fmt.Sprintf("%.2f %%", s.Process.CPUPercent)},
		{"status", s.Process.PidStatus},
		{"heap", fmt.Sprintf("%d MB", s.Process.AllocMemMb)},
		{"gc cycles", fmt.Sprint(s.Process.NumGC)},
		{"goroutines", fmt.Sprint(s.Process.Goroutines)},
		{"sampled at", sampled},
	})
}

func section(w io.Writer, p painter, title string, rows [][]string) {
	fmt.Fprintln(w, p.paint("  ====== "+title+" ======", color.BgBlack, color.FgGreen))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}
