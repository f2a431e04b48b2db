package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ha-floorplan/internal/client"
	"ha-floorplan/pkg/dashboard"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Headless dashboard
// ============================================================

type watchOptions struct {
	relay    string
	plan     string
	width    float64
	height   float64
	policy   string
	debounce time.Duration
	interval time.Duration
	edit     bool
}

func (c *CLI) watchCommand() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a headless dashboard against a relay and print the layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.relay, "relay", "http://localhost:3000", "relay base URL")
	cmd.Flags().StringVar(&opts.plan, "plan", "", "floorplan to show (default: the relay's current plan)")
	cmd.Flags().Float64Var(&opts.width, "width", 1280, "container width in pixels")
	cmd.Flags().Float64Var(&opts.height, "height", 800, "container height in pixels")
	cmd.Flags().StringVar(&opts.policy, "resize-policy", c.defaults.resizePolicy, "drag behaviour on resize: freeze or cancel")
	cmd.Flags().DurationVar(&opts.debounce, "save-debounce", c.defaults.saveDebounce, "delay before local edits are saved")
	cmd.Flags().DurationVar(&opts.interval, "interval", 250*time.Millisecond, "minimum time between redraws")
	cmd.Flags().BoolVar(&opts.edit, "edit", false, "start in edit mode (trash shown, widgets draggable)")
	return cmd
}

func (c *CLI) watch(ctx context.Context, out io.Writer, opts watchOptions) error {
	rc, err := client.New(opts.relay, nil, c.Logger)
	if err != nil {
		return err
	}
	var d *headless
	sess := client.NewSession(rc, client.SessionConfig{
		PlanID:       opts.plan,
		Container:    layout.Size{Width: opts.width, Height: opts.height},
		Policy:       layout.ParseResizePolicy(opts.policy),
		SaveDebounce: opts.debounce,
		OnSaveStatus: func(st layout.SaveStatus) { d.saveStatus(st) },
		Logger:       c.Logger,
	})

	d = newHeadless(sess.Loop())
	if opts.edit {
		d.enterEdit()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case n := <-sess.Loop().Notices():
				d.notice(n)
			case <-ticker.C:
				if !d.dirty.Swap(false) {
					continue
				}
				s, err := d.render(gctx)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Fprintln(out, s)
			}
		}
	})
	return g.Wait()
}

// headless - дашборд без UI: меряет виджеты по ожидаемым размерам и
// печатает экран после изменений раскладки.
type headless struct {
	loop     *layout.Loop
	renderer *dashboard.Renderer
	dirty    atomic.Bool

	mu  sync.Mutex
	app dashboard.AppState
}

func newHeadless(loop *layout.Loop) *headless {
	d := &headless{
		loop:     loop,
		renderer: dashboard.NewRenderer(nil),
		app:      dashboard.NewAppState(),
	}
	_ = loop.Do(func(e *layout.Engine) {
		e.OnChange(func(ch layout.Change) {
			// замеры делает сам render
			if ch.Kind != layout.ChangeResized {
				d.dirty.Store(true)
			}
		})
	})
	return d
}

func (d *headless) notice(n layout.Notice) {
	d.mu.Lock()
	d.app.Notice = n.Message
	d.mu.Unlock()
	d.dirty.Store(true)
}

func (d *headless) saveStatus(st layout.SaveStatus) {
	d.mu.Lock()
	if st.Saving {
		d.app.SaveStarted()
	} else {
		d.app.SaveFinished(st.At, st.Err)
	}
	d.mu.Unlock()
	d.dirty.Store(true)
}

// enterEdit включает режим раскладки и в AppState, и в движке.
func (d *headless) enterEdit() {
	d.mu.Lock()
	d.app.EnterEdit()
	d.mu.Unlock()
	_ = d.loop.Do(func(e *layout.Engine) { e.SetEditMode(true) })
}

// render снимает состояние движка на его цикле и строит экран.
func (d *headless) render(ctx context.Context) (string, error) {
	d.mu.Lock()
	app := d.app
	d.app.Notice = ""
	d.mu.Unlock()

	var out string
	err := d.loop.Call(ctx, func(e *layout.Engine) {
		for _, obj := range e.Store().Objects() {
			if obj.Size.Degenerate() {
				e.Measure(obj.ID, dashboard.WidgetSize(d.renderer.Widget(obj)))
			}
		}
		vp, ok := e.Viewport()
		if ok && e.FloorplanID() != "" {
			app.PlanUploaded(e.FloorplanID(), "")
		}
		if e.Editing() {
			app.EnterEdit()
		}
		app.Container = e.Container()
		view := d.renderer.Render(app, e.Store().Objects(), e.Snapshot())
		e.SetTrash(view.Trash)
		out = viewTable(view, vp)
	})
	return out, err
}
