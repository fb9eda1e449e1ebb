package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/fieldwork/pcmeshfit/fitting"
	"github.com/fieldwork/pcmeshfit/logging"
)

// reloadDelay collapses the burst of events an editor produces when saving a file.
const reloadDelay = 250 * time.Millisecond

const interactiveHelp = `commands:
  fit     fit again, starting from the last result
  reset   restore the unfitted mesh and start the next fit from scratch
  accept  keep the last result and finish
  abort   discard the last result and finish
Saving the config file refits with the new settings.`

// interactive drives a fitting session from text commands and config file changes.
type interactive struct {
	session    *fitting.Session
	inputs     *runInputs
	opts       fitting.Options
	configPath string
	out        io.Writer
	bins       int
	logger     logging.Logger

	task *fitting.FitTask
}

// run starts a first fit and then serves commands until the session is accepted or aborted.
// It returns the accepted result, or nil after an abort.
func (it *interactive) run(ctx context.Context, commands io.Reader) (*fitting.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	utils.PanicCapturingGo(func() {
		defer close(lines)
		scanner := bufio.NewScanner(commands)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	})

	reloads := make(chan struct{}, 1)
	if it.configPath != "" {
		stop, err := it.watchConfig(ctx, reloads)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	it.printf("%s\n", interactiveHelp)
	it.startFit(ctx)
	for {
		var done <-chan struct{}
		if it.task != nil {
			done = it.task.Done()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
			it.finishFit(ctx)
		case <-reloads:
			it.reload(ctx)
		case line, ok := <-lines:
			if !ok {
				return it.endOfInput(ctx)
			}
			finished, res, err := it.handle(ctx, line)
			if finished || err != nil {
				return res, err
			}
		}
	}
}

func (it *interactive) handle(ctx context.Context, line string) (bool, *fitting.Result, error) {
	switch strings.ToLower(line) {
	case "":
	case "fit":
		it.startFit(ctx)
	case "reset":
		if err := it.session.Reset(); err != nil {
			it.printf("cannot reset: %v\n", err)
			break
		}
		it.printf("mesh reset to its unfitted state\n")
	case "accept":
		if it.task != nil {
			it.printf("cannot accept: %v\n", fitting.ErrFitInFlight)
			break
		}
		res, err := it.session.Accept()
		if errors.Is(err, fitting.ErrNoResult) {
			it.printf("nothing to accept yet\n")
			break
		}
		return true, res, err
	case "abort":
		return true, nil, it.abort(ctx)
	default:
		it.printf("unknown command %q\n%s\n", line, interactiveHelp)
	}
	return false, nil, nil
}

func (it *interactive) startFit(ctx context.Context) {
	task, err := it.session.FitAsync(ctx, it.opts)
	if err != nil {
		it.printf("cannot fit: %v\n", err)
		return
	}
	it.task = task
	it.printf("fitting...\n")
}

func (it *interactive) finishFit(ctx context.Context) {
	res, err := it.task.Wait(ctx)
	it.task = nil
	if err != nil {
		it.printf("fit failed: %v\n", err)
		return
	}
	if err := writeReport(it.out, res, it.bins); err != nil {
		it.logger.Warnw("cannot write report", "error", err)
	}
}

// endOfInput lets a running fit finish, then accepts the latest result or aborts when there is
// none.
func (it *interactive) endOfInput(ctx context.Context) (*fitting.Result, error) {
	if it.task != nil {
		it.finishFit(ctx)
	}
	if len(it.session.History()) == 0 {
		return nil, it.abort(ctx)
	}
	return it.session.Accept()
}

// abort closes the session and waits for a running fit, whose result is then dropped.
func (it *interactive) abort(ctx context.Context) error {
	if err := it.session.Abort(); err != nil {
		return err
	}
	if it.task != nil {
		_, err := it.task.Wait(ctx)
		it.task = nil
		if err != nil && !errors.Is(err, fitting.ErrSessionClosed) {
			return err
		}
	}
	return nil
}

func (it *interactive) reload(ctx context.Context) {
	cfg, err := readConfig(it.configPath, it.logger)
	if err != nil {
		it.printf("config not reloaded: %v\n", err)
		return
	}
	opts, err := cfg.Options(it.inputs.mesh, it.inputs.targets, it.logger)
	if err != nil {
		it.printf("config not reloaded: %v\n", err)
		return
	}
	it.opts = opts
	it.printf("config reloaded\n")
	if it.task == nil {
		it.startFit(ctx)
	}
}

// watchConfig signals reloads whenever the config file is written. The directory is watched so
// that editors replacing the file are noticed too.
func (it *interactive) watchConfig(ctx context.Context, reloads chan<- struct{}) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := filepath.Clean(it.configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		utils.UncheckedError(watcher.Close())
		return nil, err
	}

	debounced := debounce.New(reloadDelay)
	signal := func() {
		select {
		case reloads <- struct{}{}:
		default:
		}
	}
	watchDone := make(chan struct{})
	utils.PanicCapturingGo(func() {
		defer close(watchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				debounced(signal)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				it.logger.Warnw("config watcher error", "error", err)
			}
		}
	})
	return func() {
		utils.UncheckedError(watcher.Close())
		<-watchDone
	}, nil
}

func (it *interactive) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(it.out, format, args...); err != nil {
		it.logger.Debugw("cannot write to output", "error", err)
	}
}
