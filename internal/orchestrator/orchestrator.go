// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package orchestrator drives one end-to-end ETL run: acquire the local run
// lock, start a run against the Loader, walk the source archives not yet
// recorded in the processed-archive ledger, extract and parse each one's
// documents through a bounded worker pool, fan rows out to the staging
// writer, and cycle batches of archives through the Loader's
// staging-then-merge contract before closing the run out.
//
// The per-file worker pool follows a parallel file pipeline shape: a
// bounded job channel feeding fixed goroutines, with results
// drained on a separate channel so a slow worker never blocks enqueuing.
// Appends to the staging writer are serialized behind one mutex so every
// document's rows land across all of its tables before the next document's
// rows begin, the same per-document atomicity the Writer's own per-table
// locking does not by itself guarantee.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	splerrors "github.com/gowthamrao/py-load-spl/internal/errors"

	"github.com/gowthamrao/py-load-spl/internal/archive"
	"github.com/gowthamrao/py-load-spl/internal/config"
	"github.com/gowthamrao/py-load-spl/internal/etl"
	"github.com/gowthamrao/py-load-spl/internal/loader"
	"github.com/gowthamrao/py-load-spl/internal/manifest"
	"github.com/gowthamrao/py-load-spl/internal/runlock"
	"github.com/gowthamrao/py-load-spl/internal/spldoc"
	"github.com/gowthamrao/py-load-spl/internal/stage"
)

// ArchiveOutcome reports what happened to one source archive during a run.
type ArchiveOutcome struct {
	ArchiveName     string `json:"archive_name"`
	Checksum        string `json:"checksum"`
	Skipped         bool   `json:"skipped"`
	DocumentsOK     int    `json:"documents_ok"`
	DocumentsFailed int    `json:"documents_failed"`
}

// Result summarizes a completed (or partially completed) run.
type Result struct {
	RunID            string           `json:"run_id"`
	Mode             loader.Mode      `json:"mode"`
	Status           loader.RunStatus `json:"status"`
	RecordsLoaded    int64            `json:"records_loaded"`
	Archives         []ArchiveOutcome `json:"archives"`
	QuarantinedFiles []string         `json:"quarantined_files"`
}

// PartialSuccessError reports that a run finished with status SUCCESS but
// quarantined one or more malformed documents along the way. Callers that
// want the partial-success exit code should check for this type rather
// than treating every non-nil Run error as a failed run.
type PartialSuccessError struct {
	Quarantined int
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("run completed with %d quarantined document(s)", e.Quarantined)
}

// Orchestrator runs the full acquire-parse-transform-stage-merge cycle
// against one configured Loader.
type Orchestrator struct {
	cfg       *config.Config
	ldr       loader.Loader
	logger    *slog.Logger
	onArchive func(ArchiveOutcome)
}

// New returns an Orchestrator bound to ldr and cfg. A nil logger falls back
// to slog.Default.
func New(cfg *config.Config, ldr loader.Loader, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	orchMetrics.init()
	return &Orchestrator{cfg: cfg, ldr: ldr, logger: logger}
}

// OnArchive registers a callback invoked once per archive immediately after
// it is recorded in the processed-archive ledger (skipped archives included).
// Intended for driving a CLI progress bar; nil (the default) disables it.
func (o *Orchestrator) OnArchive(fn func(ArchiveOutcome)) {
	o.onArchive = fn
}

type archiveJob struct {
	name     string
	path     string
	checksum string
}

type fileJob struct {
	archiveName    string
	diskPath       string
	sourceFilename string
}

// Run processes every *.zip archive in sourceDir not already present in the
// Loader's processed-archive ledger with a matching checksum, in mode FULL
// or DELTA. It returns a non-nil *PartialSuccessError alongside a populated
// Result when the run otherwise succeeded but quarantined documents.
func (o *Orchestrator) Run(ctx context.Context, mode loader.Mode, sourceDir string) (*Result, error) {
	runStart := time.Now()
	defer func() { orchMetrics.runDuration.Observe(time.Since(runStart).Seconds()) }()

	lockPath := filepath.Join(o.cfg.ScratchRoot, "run.lock")
	lock := runlock.New(lockPath)
	acquired, err := lock.TryAcquire()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: acquire run lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("orchestrator: another spletl run already holds %s", lockPath)
	}
	defer lock.Release()

	runID, err := o.ldr.StartRun(ctx, mode)
	if err != nil {
		return nil, splerrors.NewStagingError(
			"failed to start run", err.Error(),
			"check warehouse connectivity and retry", err)
	}
	o.logger.Info("orchestrator.run.start", "run_id", runID, "mode", mode)

	result := &Result{RunID: runID, Mode: mode}
	finalStatus := loader.StatusFailed
	var finalErr error
	var totalRecords int64
	var totalArchivesProcessed int

	defer func() {
		if endErr := o.ldr.EndRun(ctx, runID, finalStatus, totalRecords, totalArchivesProcessed, errDetail(finalErr)); endErr != nil {
			o.logger.Error("orchestrator.run.end_run_failed", "run_id", runID, "error", endErr)
		}
		o.logger.Info("orchestrator.run.finish", "run_id", runID, "status", finalStatus, "records_loaded", totalRecords)
	}()

	processed, err := o.ldr.GetProcessedArchives(ctx)
	if err != nil {
		finalErr = err
		return result, splerrors.NewStagingError("failed to read processed-archive ledger", err.Error(), "", err)
	}

	archiveNames, err := listArchives(sourceDir)
	if err != nil {
		finalErr = err
		return result, fmt.Errorf("orchestrator: list archives in %s: %w", sourceDir, err)
	}

	runDir := filepath.Join(o.cfg.ScratchRoot, runID)
	mgr := manifest.NewManager(runDir)

	workers := o.cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := o.cfg.Delta.BatchArchives
	if batchSize <= 0 {
		batchSize = 1
	}
	// A FULL merge truncates production, so a FULL run stages all of its
	// archives in a single batch and merges once.
	if mode == loader.ModeFull && len(archiveNames) > batchSize {
		batchSize = len(archiveNames)
	}

	preOptDone := false
	quarantinedTotal := 0
	batchIndex := 0
	// seenDocumentIDs tracks every document_id loaded so far in this run,
	// across all batches: a second document claiming an id already seen is
	// quarantined rather than reaching staging, where the primary key would
	// otherwise abort the whole batch's merge.
	seenDocumentIDs := make(map[string]string)

	for start := 0; start < len(archiveNames); start += batchSize {
		end := start + batchSize
		if end > len(archiveNames) {
			end = len(archiveNames)
		}

		var batchJobs []archiveJob
		for _, name := range archiveNames[start:end] {
			path := filepath.Join(sourceDir, name)
			sum, cerr := archive.Checksum(path)
			if cerr != nil {
				finalErr = cerr
				return result, fmt.Errorf("orchestrator: checksum %s: %w", name, cerr)
			}
			if prev, ok := processed[name]; ok && prev == sum {
				orchMetrics.archivesSkipped.Inc()
				skipped := ArchiveOutcome{ArchiveName: name, Checksum: sum, Skipped: true}
				result.Archives = append(result.Archives, skipped)
				if o.onArchive != nil {
					o.onArchive(skipped)
				}
				continue
			}
			batchJobs = append(batchJobs, archiveJob{name: name, path: path, checksum: sum})
		}
		if len(batchJobs) == 0 {
			continue
		}

		stagingDir := filepath.Join(runDir, "staging", fmt.Sprintf("batch-%04d", batchIndex))
		writer, werr := stage.NewWriter(stagingDir, o.cfg.ChunkSize, o.cfg.ChunkBytes)
		if werr != nil {
			finalErr = werr
			return result, splerrors.NewWriterError("failed to open staging writer", werr.Error(), "", werr)
		}

		outcomes, quarantined, procErr := o.processBatch(ctx, batchJobs, writer, runDir, seenDocumentIDs)
		if cerr := writer.Close(); cerr != nil && procErr == nil {
			procErr = cerr
		}
		quarantinedTotal += len(quarantined)
		result.QuarantinedFiles = append(result.QuarantinedFiles, quarantined...)
		for _, name := range batchNamesOf(batchJobs) {
			if oc := outcomes[name]; oc != nil {
				result.Archives = append(result.Archives, *oc)
			}
		}
		if procErr != nil {
			finalErr = procErr
			return result, splerrors.NewWriterError(
				"document processing failed", procErr.Error(),
				"inspect the quarantine directory and source archive", procErr)
		}

		if !preOptDone {
			if err := o.ldr.PreLoadOptimization(ctx, mode); err != nil {
				finalErr = err
				return result, splerrors.NewMergeError("pre-load optimization failed", err.Error(), "", err)
			}
			preOptDone = true
		}

		mergeStart := time.Now()
		rowsStaged, err := o.ldr.BulkLoadToStaging(ctx, writer.Dir())
		if err != nil {
			finalErr = err
			return result, splerrors.NewStagingError(
				"bulk load to staging failed", err.Error(),
				"check the warehouse's native bulk-ingest path and retry", err)
		}
		orchMetrics.stagingRows.Add(float64(rowsStaged))

		records, err := o.ldr.MergeFromStaging(ctx, mode)
		orchMetrics.mergeDuration.Observe(time.Since(mergeStart).Seconds())
		if err != nil {
			finalErr = err
			return result, splerrors.NewMergeError(
				"merge from staging failed", err.Error(),
				"the merge transaction rolled back; production is unchanged", err)
		}
		totalRecords += records

		for _, job := range batchJobs {
			if err := o.ldr.RecordProcessedArchive(ctx, job.name, job.checksum); err != nil {
				finalErr = err
				return result, splerrors.NewMergeError("failed to record processed archive", err.Error(), "", err)
			}
			if aerr := mgr.AppendArchive(runID, string(mode), runStart, manifestEntry(job, outcomes[job.name])); aerr != nil {
				o.logger.Warn("orchestrator.manifest.append_failed", "archive", job.name, "error", aerr)
			}
			if o.onArchive != nil {
				if oc, ok := outcomes[job.name]; ok {
					o.onArchive(*oc)
				}
			}
		}

		orchMetrics.archivesProcessed.Add(float64(len(batchJobs)))
		totalArchivesProcessed += len(batchJobs)
		batchIndex++

		select {
		case <-ctx.Done():
			finalErr = ctx.Err()
			return result, ctx.Err()
		default:
		}
	}

	if err := o.ldr.PostLoadCleanup(ctx, mode); err != nil {
		o.logger.Warn("orchestrator.post_load_cleanup_failed", "error", err)
	}

	finalStatus = loader.StatusSuccess
	result.Status = loader.StatusSuccess
	result.RecordsLoaded = totalRecords

	if quarantinedTotal > 0 {
		return result, &PartialSuccessError{Quarantined: quarantinedTotal}
	}
	return result, nil
}

// processBatch extracts and parses every archive in jobs, fanning
// documents out across a bounded worker pool, writing successfully
// transformed rows to writer and quarantining malformed documents. Every
// document_id claimed is recorded in seenDocumentIDs (shared across every
// batch in the run); a document reusing an id already present there is
// quarantined instead of written. It returns per-archive outcomes, the
// quarantined file paths, and the first non-quarantine (fatal) error
// encountered, if any.
func (o *Orchestrator) processBatch(ctx context.Context, jobs []archiveJob, writer *stage.Writer, runDir string, seenDocumentIDs map[string]string) (map[string]*ArchiveOutcome, []string, error) {
	outcomes := make(map[string]*ArchiveOutcome, len(jobs))
	for _, j := range jobs {
		outcomes[j.name] = &ArchiveOutcome{ArchiveName: j.name, Checksum: j.checksum}
	}

	workers := o.cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	queueDepth := workers * 2

	fileJobs := make(chan fileJob, queueDepth)
	type fileResult struct {
		job         fileJob
		quarantined bool
		err         error
	}
	results := make(chan fileResult, queueDepth)

	var wg sync.WaitGroup
	var writeMu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range fileJobs {
				select {
				case <-ctx.Done():
					results <- fileResult{job: job, err: ctx.Err()}
					continue
				default:
				}

				start := time.Now()
				doc, perr := spldoc.ParseFile(job.diskPath, job.sourceFilename)
				if perr == nil {
					var batches etl.RowBatches
					batches, perr = etl.Transform(doc)
					if perr == nil {
						writeMu.Lock()
						if first, dup := seenDocumentIDs[doc.DocumentID]; dup {
							perr = &spldoc.MalformedDocumentError{
								Path:   job.sourceFilename,
								Detail: fmt.Sprintf("duplicate document_id %q already loaded from %s", doc.DocumentID, first),
							}
						} else {
							seenDocumentIDs[doc.DocumentID] = job.sourceFilename
							perr = stage.AppendDocument(writer, batches)
						}
						writeMu.Unlock()
					}
				}
				orchMetrics.parseDuration.Observe(time.Since(start).Seconds())

				var malformed *spldoc.MalformedDocumentError
				results <- fileResult{job: job, quarantined: perr != nil && errors.As(perr, &malformed), err: perr}
			}
		}()
	}

	extractRoot := filepath.Join(runDir, "extract")
	go func() {
		defer close(fileJobs)
		for _, j := range jobs {
			select {
			case <-ctx.Done():
				return
			default:
			}

			destDir := filepath.Join(extractRoot, sanitizeArchiveName(j.name))
			files, eerr := archive.Extract(j.path, destDir)
			if eerr != nil {
				results <- fileResult{job: fileJob{archiveName: j.name}, err: eerr}
				continue
			}
			for _, f := range files {
				fileJobs <- fileJob{
					archiveName:    j.name,
					diskPath:       f,
					sourceFilename: j.name + "/" + filepath.Base(f),
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var quarantinedPaths []string
	var firstFatal error
	for r := range results {
		oc := outcomes[r.job.archiveName]
		if r.err == nil {
			if oc != nil {
				oc.DocumentsOK++
			}
			orchMetrics.documentsParsed.Inc()
			continue
		}

		if r.quarantined {
			if oc != nil {
				oc.DocumentsFailed++
			}
			orchMetrics.documentsFailed.Inc()
			orchMetrics.documentsQuarantined.Inc()
			qpath, qerr := o.quarantineFile(r.job)
			if qerr != nil {
				o.logger.Warn("orchestrator.quarantine.move_failed", "file", r.job.sourceFilename, "error", qerr)
			} else {
				quarantinedPaths = append(quarantinedPaths, qpath)
			}
			o.logger.Warn("orchestrator.document.quarantined", "archive", r.job.archiveName, "file", r.job.sourceFilename, "error", r.err)
			continue
		}

		if firstFatal == nil {
			firstFatal = r.err
		}
	}

	return outcomes, quarantinedPaths, firstFatal
}

// quarantineFile moves a malformed document out of its scratch extraction
// directory into cfg.QuarantinePath, grouped under its source archive name.
func (o *Orchestrator) quarantineFile(job fileJob) (string, error) {
	if job.diskPath == "" {
		return "", nil
	}
	destDir := filepath.Join(o.cfg.QuarantinePath, sanitizeArchiveName(job.archiveName))
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("quarantine: create %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(job.diskPath))
	if err := os.Rename(job.diskPath, dest); err != nil {
		return "", fmt.Errorf("quarantine: move %s: %w", job.diskPath, err)
	}
	return dest, nil
}

func sanitizeArchiveName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func listArchives(sourceDir string) ([]string, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func batchNamesOf(jobs []archiveJob) []string {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.name
	}
	return names
}

func manifestEntry(job archiveJob, oc *ArchiveOutcome) manifest.ArchiveEntry {
	entry := manifest.ArchiveEntry{
		ArchiveName:     job.name,
		ArchiveChecksum: job.checksum,
		ProcessedAt:     time.Now(),
	}
	if oc != nil {
		entry.DocumentsOK = oc.DocumentsOK
		entry.DocumentsFailed = oc.DocumentsFailed
	}
	return entry
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
