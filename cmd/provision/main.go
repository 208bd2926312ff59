package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/config"
	"mediasite-provisioning/internal/logging"
	"mediasite-provisioning/internal/mediasite"
	"mediasite-provisioning/internal/provisioning"
	"mediasite-provisioning/internal/report"
	"mediasite-provisioning/internal/sftpclient"
	"mediasite-provisioning/internal/store"
)

type flags struct {
	envFile   string
	courseID  int64
	accountID int64
	root      string
	term      string
	year      string
	batch     string
	user      string
	out       string
	workers   int
	sftp      bool
}

func main() {
	var f flags
	flag.StringVar(&f.envFile, "env", ".env", "env file to load before the process environment")
	flag.Int64Var(&f.courseID, "course", 0, "canvas course id to provision")
	flag.Int64Var(&f.accountID, "account", 0, "canvas account id (tenant) of the course, default for batch lines without one")
	flag.StringVar(&f.root, "root", "", "root folder override")
	flag.StringVar(&f.term, "term", "", "term name override")
	flag.StringVar(&f.year, "year", "", "academic year override, e.g. 2014-2015")
	flag.StringVar(&f.batch, "batch", "", "file with one course per line: course_id[,account_id[,root,term,year]]")
	flag.StringVar(&f.user, "user", "", "act as this user with their stored canvas token (default: CANVAS_TOKEN)")
	flag.StringVar(&f.out, "out", "", "write a CSV report of the run to this path")
	flag.IntVar(&f.workers, "workers", 0, "parallel courses in a batch (default: BATCH_WORKERS)")
	flag.BoolVar(&f.sftp, "sftp", false, "upload the CSV report via SFTP")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if (f.courseID == 0) == (f.batch == "") {
		return errors.New("provision: pass exactly one of -course or -batch")
	}
	if f.sftp && f.out == "" {
		return errors.New("provision: -sftp needs -out")
	}

	cfg, err := config.Load(f.envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.sftp && !cfg.SFTPEnabled() {
		return errors.New("provision: -sftp needs SFTP_HOST, SFTP_USER and SFTP_PASS")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	token := cfg.CanvasToken
	actingUser := "cli"
	if f.user != "" {
		if token, err = st.APIToken(ctx, f.user); err != nil {
			return fmt.Errorf("provision: canvas token for %s: %w", f.user, err)
		}
		actingUser = f.user
	}
	if token == "" {
		return errors.New("provision: set CANVAS_TOKEN or pass -user")
	}

	lms := canvas.New(cfg.CanvasURL, token)
	lms.PageSize = cfg.CanvasPageSize
	lms.Log = log.Named("canvas")
	host := mediasite.New(cfg.MediasiteURL, cfg.MediasiteUser, cfg.MediasitePass, cfg.MediasiteAPIKey,
		mediasite.WithHTTPClient(&http.Client{Timeout: cfg.MediasiteTimeout}),
		mediasite.WithRateLimit(cfg.MediasiteRPS, 1),
		mediasite.WithLogger(log.Named("mediasite")),
	)
	p := provisioning.New(lms, host, cfg.ProvisioningOptions(), log)

	reqs := []provisioning.Request{{
		CourseID:       f.courseID,
		AccountID:      f.accountID,
		RootFolderName: f.root,
		TermName:       f.term,
		Year:           f.year,
	}}
	if f.batch != "" {
		file, err := os.Open(f.batch)
		if err != nil {
			return fmt.Errorf("provision: %w", err)
		}
		reqs, err = parseBatch(file, f.accountID)
		file.Close()
		if err != nil {
			return err
		}
	}
	if err := attachTenants(ctx, st, reqs, actingUser); err != nil {
		return err
	}

	workers := f.workers
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	start := time.Now()
	outcomes := p.RunBatch(ctx, reqs, workers)

	failed := 0
	for _, o := range outcomes {
		if o.Err == nil {
			log.Info("provisioned", zap.Int64("course_id", o.Request.CourseID), zap.String("catalog_url", o.Result.CatalogURL))
			continue
		}
		failed++
		if err := st.LogError(ctx, actingUser, o.Err.Error()); err != nil {
			log.Warn("could not record error", zap.Error(err))
		}
	}
	log.Info("run finished", zap.Int("courses", len(outcomes)), zap.Int("failed", failed), zap.Duration("elapsed", time.Since(start)))

	if f.out != "" {
		if err := writeReport(ctx, cfg, f, outcomes, log); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("provision: %d of %d courses failed", failed, len(outcomes))
	}
	return nil
}

// parseBatch reads course_id[,account_id[,root,term,year]] lines. Blank lines
// and lines starting with # are skipped.
func parseBatch(r io.Reader, defaultAccount int64) ([]provisioning.Request, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var reqs []provisioning.Request
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("provision: batch: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > 5 {
			return nil, fmt.Errorf("provision: batch line %d: expected at most 5 fields, got %d", line, len(rec))
		}
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		id, err := strconv.ParseInt(field(0), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("provision: batch line %d: bad course id %q", line, field(0))
		}
		req := provisioning.Request{
			CourseID:       id,
			AccountID:      defaultAccount,
			RootFolderName: field(2),
			TermName:       field(3),
			Year:           field(4),
		}
		if s := field(1); s != "" {
			if req.AccountID, err = strconv.ParseInt(s, 10, 64); err != nil {
				return nil, fmt.Errorf("provision: batch line %d: bad account id %q", line, s)
			}
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, errors.New("provision: batch file has no courses")
	}
	return reqs, nil
}

type tenantSource interface {
	Tenant(ctx context.Context, accountID int64) (*store.Tenant, error)
}

// attachTenants loads each distinct account once. Unknown accounts run with
// the request's own settings and the default credentials.
func attachTenants(ctx context.Context, st tenantSource, reqs []provisioning.Request, user string) error {
	cache := map[int64]provisioning.Tenant{}
	for i := range reqs {
		reqs[i].ActingUser = user
		id := reqs[i].AccountID
		if id == 0 {
			continue
		}
		t, ok := cache[id]
		if !ok {
			row, err := st.Tenant(ctx, id)
			switch {
			case err == nil:
				t = row.Provisioning()
			case errors.Is(err, store.ErrNotFound):
			default:
				return fmt.Errorf("provision: tenant %d: %w", id, err)
			}
			cache[id] = t
		}
		reqs[i].Tenant = t
	}
	return nil
}

func writeReport(ctx context.Context, cfg config.Config, f flags, outcomes []provisioning.Outcome, log *zap.Logger) error {
	var buf bytes.Buffer
	if _, err := report.WriteCSV(&buf, outcomes); err != nil {
		return err
	}
	if dir := filepath.Dir(f.out); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(f.out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	log.Info("wrote report", zap.String("path", f.out))

	if !f.sftp {
		return nil
	}
	upCfg := sftpclient.Config{
		Host:                  cfg.SFTPHost,
		Port:                  cfg.SFTPPort,
		User:                  cfg.SFTPUser,
		Pass:                  cfg.SFTPPass,
		RemoteDir:             cfg.SFTPDir,
		KnownHostsFile:        cfg.SFTPKnownHosts,
		InsecureIgnoreHostKey: cfg.SFTPInsecureIgnoreHostKey,
	}
	upCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	remoteName := filepath.Base(f.out)
	if err := sftpclient.Upload(upCtx, upCfg, bytes.NewReader(buf.Bytes()), remoteName); err != nil {
		return err
	}
	log.Info("uploaded report", zap.String("host", upCfg.Host), zap.String("dir", upCfg.RemoteDir), zap.String("name", remoteName))
	return nil
}
