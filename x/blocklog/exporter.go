package blocklog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/ledger"
)

const (
	DefaultDir      = "network_testing_logs"
	DefaultPageSize = 100
)

// Format of the exported file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json or yaml; empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want json or yaml)", s)
	}
}

type Config struct {
	Dir      string `mapstructure:"dir"       yaml:"dir"`
	Format   string `mapstructure:"format"    yaml:"format"`
	PageSize uint32 `mapstructure:"page_size" yaml:"page_size"`
}

func DefaultConfig() Config {
	return Config{Dir: DefaultDir, Format: string(FormatJSON), PageSize: DefaultPageSize}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return errors.New("logs.dir is required")
	}
	if _, err := ParseFormat(c.Format); err != nil {
		return fmt.Errorf("logs.format: %w", err)
	}
	return nil
}

// File describes one written node log.
type File struct {
	Node   string
	Path   string
	Blocks int
	Height uint64
}

// Exporter dumps each node's chain into <dir>/<node>.log.
type Exporter struct {
	dialer   ledger.Dialer
	dir      string
	format   Format
	pageSize uint32
	log      zerolog.Logger
}

func New(cfg Config, dialer ledger.Dialer, log zerolog.Logger) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, _ := ParseFormat(cfg.Format)
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &Exporter{
		dialer:   dialer,
		dir:      cfg.Dir,
		format:   format,
		pageSize: pageSize,
		log:      log.With().Str("component", "blocklog").Logger(),
	}, nil
}

// Export writes one file per endpoint. A failing node does not stop the
// others; the files that were written are returned with the joined errors.
func (e *Exporter) Export(ctx context.Context, endpoints []endpoint.Endpoint) ([]File, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", e.dir, err)
	}

	var (
		files []File
		errs  []error
	)
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		f, err := e.exportNode(ctx, ep)
		if err != nil {
			e.log.Error().Err(err).Str("node", ep.Name).Msg("Block log export failed")
			errs = append(errs, fmt.Errorf("export %s: %w", ep.Name, err))
			continue
		}
		e.log.Info().
			Str("node", ep.Name).
			Str("path", f.Path).
			Int("blocks", f.Blocks).
			Uint64("height", f.Height).
			Msg("Block log written")
		files = append(files, f)
	}
	return files, errors.Join(errs...)
}

func (e *Exporter) exportNode(ctx context.Context, ep endpoint.Endpoint) (File, error) {
	client, err := e.dialer.Dial(ep)
	if err != nil {
		return File{}, err
	}

	// The previous log stays in place until the new one is complete.
	path := filepath.Join(e.dir, ep.Name+".log")
	out, err := os.CreateTemp(e.dir, ep.Name+".log.*.tmp")
	if err != nil {
		return File{}, err
	}
	file, err := e.writeBlocks(ctx, client, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out.Name())
		return File{}, err
	}
	if err := os.Chmod(out.Name(), 0o644); err != nil {
		_ = os.Remove(out.Name())
		return File{}, err
	}
	if err := os.Rename(out.Name(), path); err != nil {
		_ = os.Remove(out.Name())
		return File{}, err
	}
	file.Node, file.Path = ep.Name, path
	return file, nil
}

func (e *Exporter) writeBlocks(ctx context.Context, client ledger.Client, out io.Writer) (File, error) {
	w := bufio.NewWriter(out)
	enc := e.encoder(w)

	var file File
	from := uint64(1)
	for {
		resp, err := client.ListBlocks(ctx, from, e.pageSize)
		if err != nil {
			return File{}, fmt.Errorf("list blocks from %d: %w", from, err)
		}
		file.Height = resp.Height
		for i := range resp.Blocks {
			if err := enc.encode(&resp.Blocks[i]); err != nil {
				return File{}, err
			}
			file.Blocks++
		}
		if len(resp.Blocks) == 0 {
			break
		}
		from = resp.Blocks[len(resp.Blocks)-1].Height + 1
		if from > resp.Height {
			break
		}
	}

	if err := enc.close(); err != nil {
		return File{}, err
	}
	return file, w.Flush()
}

type blockEncoder struct {
	encode func(*ledger.Block) error
	close  func() error
}

func (e *Exporter) encoder(w io.Writer) blockEncoder {
	if e.format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return blockEncoder{
			encode: func(b *ledger.Block) error { return enc.Encode(b) },
			close:  enc.Close,
		}
	}
	enc := json.NewEncoder(w)
	return blockEncoder{
		encode: func(b *ledger.Block) error { return enc.Encode(b) },
		close:  func() error { return nil },
	}
}
