package chart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/environment"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/fs"
	"github.com/bcit-ltc/forge-pipeline/git"
)

const (
	// ChartFile is the chart metadata file name.
	ChartFile = "Chart.yaml"

	// DefaultValuesFile is the values file edited when none is configured.
	DefaultValuesFile = "values.yaml"
)

// UpdateRequest describes one version bump of a chart in a chart repository.
type UpdateRequest struct {
	Repository string
	Branch     string
	// Path is the chart directory within the repository.
	Path       string
	ValuesFile string
	HostKey    string

	App        string
	Version    string
	AppVersion string
	ImageTag   string

	Classification environment.Classification
	Timestamp      time.Time
}

func (r *UpdateRequest) validate() error {
	switch {
	case r.Repository == "":
		return errors.New(errors.CodeInvalidInput, "chart repository is required")
	case r.Branch == "":
		return errors.New(errors.CodeInvalidInput, "chart branch is required")
	case r.App == "":
		return errors.New(errors.CodeInvalidInput, "app name is required")
	case r.Version == "":
		return errors.New(errors.CodeInvalidInput, "version is required")
	case r.ImageTag == "":
		return errors.New(errors.CodeInvalidInput, "image tag is required")
	case r.Timestamp.IsZero():
		return errors.New(errors.CodeInvalidInput, "timestamp is required")
	}
	return nil
}

// Result is the outcome of an update. FS holds the checkout the update was
// written to so the chart can be released from the same content.
type Result struct {
	domain.ChartUpdate
	FS fs.Filesystem `json:"-"`
}

// Updater writes versions into a chart repository.
type Updater struct {
	store    Store
	author   git.Signature
	attempts int
	delay    time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithAuthor sets the commit author name and email.
func WithAuthor(name, email string) UpdaterOption {
	return func(u *Updater) {
		u.author.Name = name
		u.author.Email = email
	}
}

// WithRetry sets how many attempts clone, push and reset get and the initial
// backoff between them. Only transient failures and rejected pushes are
// retried.
func WithRetry(attempts int, delay time.Duration) UpdaterOption {
	return func(u *Updater) {
		if attempts > 0 {
			u.attempts = attempts
		}
		if delay >= 0 {
			u.delay = delay
		}
	}
}

// WithOperationTimeout bounds each clone, push and reset. Zero disables the
// bound.
func WithOperationTimeout(d time.Duration) UpdaterOption {
	return func(u *Updater) {
		if d >= 0 {
			u.timeout = d
		}
	}
}

// WithUpdaterLogger sets the logger.
func WithUpdaterLogger(l *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUpdater creates an Updater reading and writing through store.
func NewUpdater(store Store, opts ...UpdaterOption) *Updater {
	u := &Updater{
		store:    store,
		author:   git.Signature{Name: "forge-pipeline", Email: "forge-pipeline@users.noreply.github.com"},
		attempts: 3,
		delay:    time.Second,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update checks out the chart repository, edits Chart.yaml and the values
// file, then commits and pushes. Nothing is committed when the files already
// hold the requested values. A rejected push is retried from the new remote
// tip; when attempts run out a *WriteConflictError is returned.
//
// The environment host prefix is applied to the returned FS only, after the
// push, so the shared chart keeps the unprefixed host.
func (u *Updater) Update(ctx context.Context, req UpdateRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.AppVersion == "" {
		req.AppVersion = req.Version
	}
	if req.ValuesFile == "" {
		req.ValuesFile = DefaultValuesFile
	}
	if req.Path == "" {
		req.Path = "."
	}

	var ws Workspace
	err := u.retry(ctx, "checkout chart repository", func(ctx context.Context) error {
		var err error
		ws, err = u.store.Checkout(ctx, req.Repository, req.Branch)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ChartUpdate: domain.ChartUpdate{
			Repository: req.Repository,
			Path:       req.Path,
			Version:    req.Version,
			AppVersion: req.AppVersion,
			ImageTag:   req.ImageTag,
		},
		FS: ws.FS(),
	}

	edits := Edits{
		Version:    req.Version,
		AppVersion: req.AppVersion,
		ImageTag:   req.ImageTag,
	}
	who := u.author
	who.When = req.Timestamp
	msg := fmt.Sprintf("Update %s to version %s", req.App, req.Version)
	delay := u.delay

	// hash is the local commit awaiting push; empty means edits must be
	// (re)applied.
	var hash string
	for attempt := 1; ; attempt++ {
		if hash == "" {
			changed, err := applyEdits(ws.FS(), req, edits)
			if err != nil {
				return Result{}, err
			}
			if changed {
				var ok bool
				hash, ok, err = ws.Commit(ctx, msg, who, u.paths(req)...)
				if err != nil {
					return Result{}, gitError(err, "commit chart update")
				}
				changed = ok
			}
			if !changed {
				head, err := ws.Head(ctx)
				if err != nil {
					return Result{}, gitError(err, "resolve chart repository head")
				}
				u.logger.Info("chart already up to date", "app", req.App, "version", req.Version)
				res.Commit = head
				return u.prefixHost(res, req)
			}
		}

		err := u.timed(ctx, ws.Push)
		if err == nil {
			u.logger.Info("updated chart", "app", req.App, "version", req.Version, "commit", hash)
			res.Commit = hash
			res.Changed = true
			return u.prefixHost(res, req)
		}

		conflict := errors.Is(err, git.ErrNotFastForward)
		if ctx.Err() != nil || !errors.IsRetryableCode(git.ErrorCode(err)) {
			return Result{}, gitError(err, "push chart update")
		}
		if attempt >= u.attempts {
			if conflict {
				return Result{}, &WriteConflictError{
					Repository: req.Repository,
					Branch:     req.Branch,
					Attempts:   attempt,
					Err:        err,
				}
			}
			return Result{}, gitError(err, "push chart update")
		}

		u.logger.Warn("chart push failed, retrying",
			"attempt", attempt, "delay", delay, "branch", req.Branch, "conflict", conflict, "error", err)
		if err := wait(ctx, delay); err != nil {
			return Result{}, gitError(err, "chart update interrupted")
		}
		delay *= 2

		if conflict {
			if err := u.retry(ctx, "reset chart repository", ws.Reset); err != nil {
				return Result{}, err
			}
			hash = ""
		}
	}
}

// retry runs op until it succeeds or fails with a code that is not
// transient. Each call is bounded by the operation timeout.
func (u *Updater) retry(ctx context.Context, what string, op func(context.Context) error) error {
	delay := u.delay
	for attempt := 1; ; attempt++ {
		err := u.timed(ctx, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= u.attempts || !errors.IsRetryableCode(git.ErrorCode(err)) {
			return gitError(err, what)
		}
		u.logger.Warn(what+" failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := wait(ctx, delay); err != nil {
			return gitError(err, what+" interrupted")
		}
		delay *= 2
	}
}

func (u *Updater) timed(ctx context.Context, op func(context.Context) error) error {
	if u.timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	return op(ctx)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// prefixHost rewrites the host key of the checked out values file for the
// run's environment. The file is left uncommitted.
func (u *Updater) prefixHost(res Result, req UpdateRequest) (Result, error) {
	if req.HostKey == "" {
		return res, nil
	}
	name := path.Join(req.Path, req.ValuesFile)
	data, err := res.FS.ReadFile(name)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "read "+name)
	}
	out, host, err := EditHost(data, req.HostKey, HostPrefix(req.Classification))
	if err != nil {
		return Result{}, errors.WrapWithContext(err, errors.CodeInvalidInput, "edit chart file",
			map[string]interface{}{"file": name})
	}
	if err := res.FS.WriteFile(name, out, os.FileMode(0o644)); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "write "+name)
	}
	res.Host = host
	return res, nil
}

func (u *Updater) paths(req UpdateRequest) []string {
	return []string{path.Join(req.Path, ChartFile), path.Join(req.Path, req.ValuesFile)}
}

// applyEdits rewrites Chart.yaml and the values file in place and reports
// whether either changed.
func applyEdits(fsys fs.Filesystem, req UpdateRequest, e Edits) (bool, error) {
	chartPath := path.Join(req.Path, ChartFile)
	valuesPath := path.Join(req.Path, req.ValuesFile)

	chartChanged, err := editFile(fsys, chartPath, e, EditChart)
	if err != nil {
		return false, err
	}
	valuesChanged, err := editFile(fsys, valuesPath, e, EditValues)
	if err != nil {
		return false, err
	}
	return chartChanged || valuesChanged, nil
}

func editFile(fsys fs.Filesystem, name string, e Edits, edit func([]byte, Edits) ([]byte, bool, error)) (bool, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		if ok, _ := fsys.Exists(name); !ok {
			return false, errors.WrapWithContext(err, errors.CodeNotFound, "chart file not found",
				map[string]interface{}{"file": name})
		}
		return false, errors.Wrap(err, errors.CodeInternal, "read "+name)
	}

	out, changed, err := edit(data, e)
	if err != nil {
		return false, errors.WrapWithContext(err, errors.CodeInvalidInput, "edit chart file",
			map[string]interface{}{"file": name})
	}
	if !changed {
		return false, nil
	}
	if err := fsys.WriteFile(name, out, os.FileMode(0o644)); err != nil {
		return false, errors.Wrap(err, errors.CodeInternal, "write "+name)
	}
	return true, nil
}
