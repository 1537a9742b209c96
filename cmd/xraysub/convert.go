package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/creamcroissant/xraysub/internal/bootstrap"
	"github.com/creamcroissant/xraysub/internal/config"
	"github.com/creamcroissant/xraysub/internal/fetch"
	"github.com/creamcroissant/xraysub/internal/protocol"
	"github.com/creamcroissant/xraysub/internal/service"
	"github.com/creamcroissant/xraysub/internal/support/logging"
	"github.com/creamcroissant/xraysub/internal/xray"
)

// sourceFlags select the input of convert and inspect.
type sourceFlags struct {
	url          string
	file         string
	policy       string
	allowPrivate bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "fetch the Xray config from this URL")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read the Xray config from a file (- for stdin)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "selection policy: permissive or strict (default convert.policy)")
	cmd.Flags().BoolVar(&f.allowPrivate, "allow-private", false, "allow fetching from private and loopback addresses")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	cmd.MarkFlagsOneRequired("url", "file")
}

func (f sourceFlags) profile(cfg *config.Config) (service.Profile, error) {
	name := f.policy
	if name == "" {
		name = cfg.Convert.Policy
	}
	policy, err := protocol.PolicyByName(name)
	if err != nil {
		return service.Profile{}, err
	}
	p := service.ConvertProfile(policy, bootstrap.SecurityDefaults(cfg.Security), 0)
	p.Name = "cli"
	return p, nil
}

func (f sourceFlags) converter(cfg *config.Config, logger *slog.Logger) *service.Converter {
	return service.NewConverter(f.fetcher(cfg), logger, nil)
}

func (f sourceFlags) readFile(stdin io.Reader) ([]byte, error) {
	if f.file == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(f.file)
}

func (f sourceFlags) fetcher(cfg *config.Config) *fetch.Fetcher {
	fetchCfg := cfg.Fetch
	fetchCfg.AllowPrivateNetworks = fetchCfg.AllowPrivateNetworks || f.allowPrivate
	return bootstrap.NewFetcher(fetchCfg)
}

func (f sourceFlags) download(ctx context.Context, cfg *config.Config) ([]byte, error) {
	return f.fetcher(cfg).Fetch(ctx, f.url)
}

func cliLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Options{
		Level:  cfg.Log.SlogLevel(),
		Format: "text",
		Output: os.Stderr,
	})
}

func init() {
	var (
		src   sourceFlags
		plain bool
	)
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert one Xray config into a subscription",
		Example: `  xraysub convert --url 'https://example.com/sub?app=xray'
  xraysub convert -f config.json --policy strict --plain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), appConfig, src, plain, cliLogger(appConfig))
		},
	}
	src.register(convertCmd)
	convertCmd.Flags().BoolVar(&plain, "plain", false, "print share links one per line instead of base64")
	rootCmd.AddCommand(convertCmd)

	var inspectSrc sourceFlags
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how each outbound of an Xray config is selected and mapped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), appConfig, inspectSrc)
		},
	}
	inspectSrc.register(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}

func runConvert(ctx context.Context, out io.Writer, stdin io.Reader, cfg *config.Config, src sourceFlags, plain bool, logger *slog.Logger) error {
	profile, err := src.profile(cfg)
	if err != nil {
		return err
	}

	var result *service.SubscriptionResult
	if src.file != "" {
		body, err := src.readFile(stdin)
		if err != nil {
			return err
		}
		result, err = service.NewConverter(nil, logger, nil).ConvertBody(profile, body)
		if err != nil {
			return describe(err)
		}
	} else {
		result, err = src.converter(cfg, logger).Convert(ctx, profile, src.url)
		if err != nil {
			return describe(err)
		}
	}

	if len(result.Skipped) > 0 {
		logger.Info("some outbounds produced no link", "skipped", len(result.Skipped))
	}
	if plain {
		for _, uri := range result.URIs {
			if _, err := fmt.Fprintln(out, uri); err != nil {
				return err
			}
		}
		return nil
	}
	_, err = fmt.Fprintln(out, string(result.Payload))
	return err
}

// describe turns pipeline errors into the messages the HTTP routes use.
func describe(err error) error {
	switch {
	case errors.Is(err, service.ErrMissingSourceURL):
		return fmt.Errorf("missing source url: %w", err)
	case errors.Is(err, service.ErrInvalidRequest):
		return fmt.Errorf("invalid source url: %w", err)
	case errors.Is(err, service.ErrUpstreamFetch):
		return fmt.Errorf("%s: %w", service.MessageFetchFailedURL, err)
	case errors.Is(err, service.ErrMalformedSource):
		return fmt.Errorf("source did not return valid JSON: %w", err)
	default:
		return err
	}
}

type inspectReport struct {
	Policy    string            `yaml:"policy"`
	Documents []inspectDocument `yaml:"documents"`
	URIs      []string          `yaml:"uris"`
}

type inspectDocument struct {
	Index     int               `yaml:"index"`
	Remarks   string            `yaml:"remarks"`
	Malformed int               `yaml:"malformed_outbounds,omitempty"`
	Outbounds []inspectOutbound `yaml:"outbounds"`
}

type inspectOutbound struct {
	Tag      string `yaml:"tag"`
	Protocol string `yaml:"protocol"`
	Selected bool   `yaml:"selected"`
	URI      string `yaml:"uri,omitempty"`
	Skip     string `yaml:"skip,omitempty"`
}

func runInspect(ctx context.Context, out io.Writer, stdin io.Reader, cfg *config.Config, src sourceFlags) error {
	profile, err := src.profile(cfg)
	if err != nil {
		return err
	}
	var body []byte
	if src.file != "" {
		body, err = src.readFile(stdin)
	} else {
		body, err = src.download(ctx, cfg)
		if err != nil {
			err = describe(service.FetchFailure(profile, err))
		}
	}
	if err != nil {
		return err
	}
	docs, err := xray.Parse(body)
	if err != nil {
		return describe(fmt.Errorf("%w: %w", service.ErrMalformedSource, err))
	}

	builder := protocol.NewGeneralBuilder(profile.Security)
	report := inspectReport{Policy: profile.Policy.Name(), URIs: []string{}}
	for i, doc := range docs {
		entry := inspectDocument{Index: i, Remarks: doc.DisplayName(), Malformed: doc.Skipped}
		selected := profile.Policy.Select(doc.Outbounds)
		next := 0
		for _, outbound := range doc.Outbounds {
			item := inspectOutbound{Tag: outbound.Tag, Protocol: outbound.Protocol}
			if next < len(selected) && sameOutbound(outbound, selected[next]) {
				next++
				item.Selected = true
				m := builder.Map(outbound, doc.DisplayName())
				item.URI = m.URI
				item.Skip = string(m.Skip)
			}
			entry.Outbounds = append(entry.Outbounds, item)
		}
		report.Documents = append(report.Documents, entry)
	}

	built, err := builder.Build(protocol.BuildRequest{Documents: docs, Policy: profile.Policy})
	if err != nil {
		return err
	}
	report.URIs = append(report.URIs, built.URIs...)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func sameOutbound(a, b xray.Outbound) bool {
	return a.Protocol == b.Protocol && a.Tag == b.Tag && bytes.Equal(a.Settings, b.Settings)
}
