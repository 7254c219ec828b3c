package scanner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"imagesim/logging"
)

// ProgressTracker tracks progress of the scan operation
type ProgressTracker struct {
	summary ScanSummary
	ticker  *time.Ticker
	done    chan struct{}
	drained chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	out     io.Writer
	logger  *zap.Logger
}

// NewProgressTracker starts consuming results and printing progress to out
func NewProgressTracker(total int, resultsChan <-chan ProcessImageResult, out io.Writer, logger *zap.Logger) *ProgressTracker {
	tracker := &ProgressTracker{
		summary: ScanSummary{Total: total},
		ticker:  time.NewTicker(500 * time.Millisecond),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		stopped: make(chan struct{}),
		out:     out,
		logger:  logger,
	}

	go tracker.displayProgress()
	go tracker.processResults(resultsChan)

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			s := p.summary
			p.mu.Unlock()
			done := s.Indexed + s.Skipped + s.Failed
			if s.Failed > 0 {
				fmt.Fprintf(p.out, "\rProgress: %d/%d (Skipped: %d, Errors: %d)", done, s.Total, s.Skipped, s.Failed)
			} else {
				fmt.Fprintf(p.out, "\rProgress: %d/%d (Skipped: %d)", done, s.Total, s.Skipped)
			}
		}
	}
}

// processResults updates the tracker state based on processing results
func (p *ProgressTracker) processResults(resultsChan <-chan ProcessImageResult) {
	defer close(p.drained)
	for result := range resultsChan {
		p.mu.Lock()
		switch {
		case result.Error != nil:
			p.summary.Failed++
		case result.Skipped:
			p.summary.Skipped++
		default:
			p.summary.Indexed++
		}
		p.mu.Unlock()
		logging.LogImageProcessed(p.logger, result.Path, result.Error)
	}
}

// Stop waits for the results channel to be closed and drained, then ends the
// progress display and returns the counts.
func (p *ProgressTracker) Stop() ScanSummary {
	<-p.drained
	p.ticker.Stop()
	close(p.done)
	<-p.stopped
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// PrintStartupInfo displays information about the scan before starting
func PrintStartupInfo(out io.Writer, total int, options ScanOptions) {
	fmt.Fprintf(out, "Starting image indexing...\nTotal image files to process: %d\n", total)
	fmt.Fprintf(out, "Force rewrite mode: %v\n", options.ForceRewrite)
	if options.SourcePrefix != "" {
		fmt.Fprintf(out, "Source prefix: %s\n", options.SourcePrefix)
	}
}

// PrintCompletionStats displays statistics after scan completion
func PrintCompletionStats(out io.Writer, summary ScanSummary) {
	fmt.Fprintln(out, "\nIndexing complete.")
	fmt.Fprintf(out, "Indexed %d images in %v (%d unchanged).\n",
		summary.Indexed, summary.Elapsed.Round(time.Second), summary.Skipped)
	if summary.Failed > 0 {
		fmt.Fprintf(out, "Encountered %d errors during indexing.\n", summary.Failed)
		fmt.Fprintln(out, "Check the log file for details.")
	}
}
