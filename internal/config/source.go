package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/joho/godotenv"

	"github.com/a5c-ai/mcpml/internal/errs"
)

// DefaultFileName is looked up when the config source is a directory.
const DefaultFileName = "mcpml.yaml"

// Load resolves source to a config file, decodes it, and loads the env_file
// it names, if present. Source may be a local file, a local directory
// containing mcpml.yaml, or a git URL (cloned into the local cache).
func Load(ctx context.Context, source string) (*Config, error) {
	path, err := resolveSource(ctx, source)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not read %s.", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)

	if err := loadEnvFile(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve turns a possibly relative path from the config into an absolute
// one, anchored at the config's directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

func resolveSource(ctx context.Context, source string) (string, error) {
	if isGitURL(source) {
		dir, err := fetchRepo(ctx, source)
		if err != nil {
			return "", err
		}
		return findConfigFile(dir)
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", errs.Wrapf(err, "Could not find config %s.", source)
	}
	if info.IsDir() {
		return findConfigFile(source)
	}
	return source, nil
}

func isGitURL(source string) bool {
	return strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "git@")
}

func findConfigFile(dir string) (string, error) {
	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		return "", errs.Wrapf(err, "No %s in %s.", DefaultFileName, dir)
	}
	return path, nil
}

// fetchRepo clones url into the user cache, or pulls if a clone already
// exists. A failed pull on an existing clone is not fatal, the cached copy
// keeps the tool usable offline.
func fetchRepo(ctx context.Context, url string) (string, error) {
	dir, err := repoCacheDir(url)
	if err != nil {
		return "", err
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil {
		if err := pullRepo(ctx, dir); err != nil {
			slog.Warn("could not refresh cached config repo, using cached copy", "dir", dir, "error", err)
		}
		return dir, nil
	}

	slog.Info("cloning config repo", "url", url, "dir", dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", errs.Wrap(err, "Could not create the config cache directory.")
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   url,
		Depth: 1,
	}); err != nil {
		_ = os.RemoveAll(dir)
		return "", errs.Wrapf(err, "Could not clone %s.", url)
	}
	return dir, nil
}

func pullRepo(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// repoCacheDir maps a repo URL to a stable directory under the user cache,
// keeping a readable prefix alongside a hash so distinct URLs never collide.
func repoCacheDir(url string) (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", errs.Wrap(err, "Could not find the user cache directory.")
	}
	sum := sha256.Sum256([]byte(url))
	name := fmt.Sprintf("%s-%x", readableRepoName(url), sum[:8])
	return filepath.Join(cache, "mcpml", "repos", name), nil
}

func readableRepoName(url string) string {
	name := strings.TrimSuffix(url, ".git")
	name = strings.TrimSuffix(name, "/")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" {
		name = "repo"
	}
	return name
}

// loadEnvFile loads the config's env_file into the process environment
// without overriding variables that are already set. A missing default
// env_file is fine; a missing explicit one is an error.
func loadEnvFile(c *Config) error {
	explicit := c.Settings.EnvFile != DefaultEnvFile
	path := c.Resolve(c.Settings.EnvFile)
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return errs.Wrapf(err, "Could not find env file %s.", path)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errs.Wrapf(err, "Could not load env file %s.", path)
	}
	slog.Debug("loaded env file", "path", path)
	return nil
}
