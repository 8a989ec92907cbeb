// Package agentdl fetches the newest agent installer offered by a console.
package agentdl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	version "github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
)

var ErrNoVersion = errors.New("console offers no installer for that os")

type Source interface {
	AgentVersions(ctx context.Context) ([]console.AgentVersion, error)
	DownloadInstaller(ctx context.Context, v console.AgentVersion) ([]byte, error)
}

// Latest returns the highest version for osName. Dotted components are compared
// numerically, so 3.10 sorts after 3.9. Unparseable versions are skipped.
func Latest(versions []console.AgentVersion, osName string) (console.AgentVersion, error) {
	var (
		best   console.AgentVersion
		bestV  *version.Version
		parsed int
	)
	for _, v := range versions {
		if !strings.EqualFold(v.OS, osName) {
			continue
		}
		sv, err := version.NewVersion(v.Version)
		if err != nil {
			log.Debug().Str("version", v.Version).Err(err).Msg("Skipping unparseable agent version")
			continue
		}
		parsed++
		if bestV == nil || sv.GreaterThan(bestV) {
			best, bestV = v, sv
		}
	}
	if parsed == 0 {
		return console.AgentVersion{}, fmt.Errorf("%w: %s", ErrNoVersion, osName)
	}
	return best, nil
}

// FileName is where the installer for v is written.
func FileName(v console.AgentVersion) string {
	return fmt.Sprintf("deepinstinct_%s_%s.exe", strings.ToLower(v.OS), v.Version)
}

// DownloadLatestWindows writes the newest Windows installer into dir and
// returns its path.
func DownloadLatestWindows(ctx context.Context, src Source, dir string, logger *zerolog.Logger) (string, error) {
	l := log.Logger.With().Str("component", "agentdl").Logger()
	if logger != nil {
		l = *logger
	}
	versions, err := src.AgentVersions(ctx)
	if err != nil {
		return "", fmt.Errorf("list agent versions: %w", err)
	}
	l.Info().Int("available", len(versions)).Msg("Listed agent versions")

	latest, err := Latest(versions, console.OSWindows)
	if err != nil {
		return "", err
	}
	l.Info().Str("version", latest.Version).Msg("Selected latest Windows agent")

	data, err := src.DownloadInstaller(ctx, latest)
	if err != nil {
		return "", fmt.Errorf("download installer %s: %w", latest.Version, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(latest))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	l.Info().Str("path", path).Int("bytes", len(data)).Msg("Saved installer")
	return path, nil
}
