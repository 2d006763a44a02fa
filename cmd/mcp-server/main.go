package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patrickwarner/embedpool/internal/app"
	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/pool"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"go.uber.org/zap"
)

// toolTimeout bounds how long a tool call waits for the event loop.
const toolTimeout = 10 * time.Second

type ScrollToInput struct {
	ScrollTop float64 `json:"scroll_top" jsonschema:"document offset of the viewport top edge"`
	Height    float64 `json:"height,omitempty" jsonschema:"new viewport height (optional)"`
	Width     float64 `json:"width,omitempty" jsonschema:"new viewport width (optional)"`
}

type ScrollToOutput struct {
	Viewport models.Viewport `json:"viewport"`
	Attached []string        `json:"attached"`
}

type PoolStateInput struct{}

type SlotView struct {
	Name       string  `json:"name"`
	Top        float64 `json:"top"`
	Height     float64 `json:"height"`
	Source     string  `json:"source"`
	Frame      int     `json:"frame"`
	HasPayload bool    `json:"has_payload"`
}

type FrameView struct {
	ID          int    `json:"id"`
	Slot        string `json:"slot,omitempty"`
	Visibility  string `json:"visibility"`
	Collapsed   bool   `json:"collapsed"`
	PendingLoad bool   `json:"pending_load"`
	// RestorePending is set while a stored payload waits for the editor.
	RestorePending bool   `json:"restore_pending"`
	Generation     uint64 `json:"generation"`
}

type PoolStateOutput struct {
	Viewport models.Viewport `json:"viewport"`
	Passes   uint64          `json:"passes"`
	Attached []string        `json:"attached"`
	Slots    []SlotView      `json:"slots"`
	Frames   []FrameView     `json:"frames"`
}

func poolState(snap models.PoolSnapshot) PoolStateOutput {
	out := PoolStateOutput{
		Viewport: snap.Viewport,
		Passes:   snap.Passes,
		Attached: snap.AttachedSlots(),
		Slots:    make([]SlotView, 0, len(snap.Slots)),
		Frames:   make([]FrameView, 0, len(snap.Frames)),
	}
	if out.Attached == nil {
		out.Attached = []string{}
	}
	for _, s := range snap.Slots {
		out.Slots = append(out.Slots, SlotView{
			Name:       s.Name,
			Top:        s.Geometry.Top,
			Height:     s.Geometry.Height,
			Source:     s.Source,
			Frame:      int(s.Frame),
			HasPayload: s.HasPayload,
		})
	}
	for _, f := range snap.Frames {
		fv := FrameView{
			ID:             int(f.ID),
			Visibility:     string(f.Visibility),
			Collapsed:      f.Collapsed,
			PendingLoad:    f.PendingLoad,
			RestorePending: f.RestorePending,
			Generation:     f.Generation,
		}
		if !f.Free() && int(f.Slot) < len(snap.Slots) {
			fv.Slot = snap.Slots[f.Slot].Name
		}
		out.Frames = append(out.Frames, fv)
	}
	return out
}

type SlotInput struct {
	Slot string `json:"slot" jsonschema:"slot element id, e.g. demo3"`
}

type EditSlotInput struct {
	Slot string `json:"slot" jsonschema:"slot element id, e.g. demo3"`
	Text string `json:"text" jsonschema:"replacement editor text"`
}

type SlotTextOutput struct {
	Slot string `json:"slot"`
	Text string `json:"text"`
	Live bool   `json:"live"`
}

type ResetSlotOutput struct {
	Slot   string `json:"slot"`
	Status string `json:"status"`
}

// PoolServer exposes an in-process frame pool as MCP tools.
type PoolServer struct {
	app    *app.App
	logger *zap.Logger
}

func (s *PoolServer) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	return eventloop.Do(ctx, s.app.Loop, fn)
}

// ScrollTo moves the viewport and reconciles at once, bypassing the scroll
// throttle so the result reflects the new position.
func (s *PoolServer) ScrollTo(ctx context.Context, req *mcp.CallToolRequest, input ScrollToInput) (*mcp.CallToolResult, ScrollToOutput, error) {
	if input.Height < 0 || input.Width < 0 {
		return nil, ScrollToOutput{}, errors.New("viewport size must not be negative")
	}

	doc := s.app.Document
	if input.Height > 0 || input.Width > 0 {
		vp := doc.Viewport()
		if input.Height > 0 {
			vp.Height = input.Height
		}
		if input.Width > 0 {
			vp.Width = input.Width
		}
		doc.SetViewport(vp)
	}
	vp := doc.ScrollTo(input.ScrollTop)

	var (
		out       = ScrollToOutput{Viewport: vp}
		reconcErr error
	)
	if err := s.onLoop(ctx, func() {
		reconcErr = s.app.Pool.Reconcile(ctx, vp)
		out.Attached = s.app.Pool.Snapshot(ctx).AttachedSlots()
	}); err != nil {
		return nil, ScrollToOutput{}, err
	}
	if out.Attached == nil {
		out.Attached = []string{}
	}
	if reconcErr != nil {
		return nil, ScrollToOutput{}, fmt.Errorf("reconcile: %w", reconcErr)
	}

	s.logger.Info("scrolled",
		zap.Float64("scroll_top", vp.ScrollTop),
		zap.Strings("attached", out.Attached))
	return nil, out, nil
}

// PoolState returns a snapshot of every slot and frame.
func (s *PoolServer) PoolState(ctx context.Context, req *mcp.CallToolRequest, input PoolStateInput) (*mcp.CallToolResult, PoolStateOutput, error) {
	var snap models.PoolSnapshot
	if err := s.onLoop(ctx, func() { snap = s.app.Pool.Snapshot(ctx) }); err != nil {
		return nil, PoolStateOutput{}, err
	}
	return nil, poolState(snap), nil
}

// SlotText reads the text of a slot, live or persisted.
func (s *PoolServer) SlotText(ctx context.Context, req *mcp.CallToolRequest, input SlotInput) (*mcp.CallToolResult, SlotTextOutput, error) {
	var (
		out = SlotTextOutput{Slot: input.Slot}
		err error
	)
	if loopErr := s.onLoop(ctx, func() {
		out.Text, out.Live, err = s.app.Pool.SlotText(ctx, input.Slot)
	}); loopErr != nil {
		return nil, SlotTextOutput{}, loopErr
	}
	if err != nil {
		return nil, SlotTextOutput{}, err
	}
	return nil, out, nil
}

// EditSlot replaces the text of a slot.
func (s *PoolServer) EditSlot(ctx context.Context, req *mcp.CallToolRequest, input EditSlotInput) (*mcp.CallToolResult, SlotTextOutput, error) {
	var (
		out = SlotTextOutput{Slot: input.Slot, Text: input.Text}
		err error
	)
	if loopErr := s.onLoop(ctx, func() {
		out.Live, err = s.app.Pool.SetSlotText(ctx, input.Slot, input.Text)
	}); loopErr != nil {
		return nil, SlotTextOutput{}, loopErr
	}
	if err != nil {
		return nil, SlotTextOutput{}, err
	}
	s.logger.Info("slot edited", zap.String("slot", input.Slot), zap.Bool("live", out.Live))
	return nil, out, nil
}

// ResetSlot discards the persisted edits of a slot.
func (s *PoolServer) ResetSlot(ctx context.Context, req *mcp.CallToolRequest, input SlotInput) (*mcp.CallToolResult, ResetSlotOutput, error) {
	var err error
	if loopErr := s.onLoop(ctx, func() {
		err = s.app.Pool.ResetSlot(ctx, input.Slot)
	}); loopErr != nil {
		return nil, ResetSlotOutput{}, loopErr
	}
	if errors.Is(err, pool.ErrUnknownSlot) {
		return nil, ResetSlotOutput{}, fmt.Errorf("no slot named %q", input.Slot)
	}
	if err != nil {
		return nil, ResetSlotOutput{}, err
	}
	return nil, ResetSlotOutput{Slot: input.Slot, Status: "reset"}, nil
}

func newMCPServer(s *PoolServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "embedpool",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scroll_to",
		Description: "Scroll the tutorial page and report which demo slots hold an editor frame",
	}, s.ScrollTo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pool_state",
		Description: "Snapshot of every demo slot and pooled frame",
	}, s.PoolState)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "slot_text",
		Description: "Read the editor text of a demo slot",
	}, s.SlotText)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "edit_slot",
		Description: "Replace the editor text of a demo slot",
	}, s.EditSlot)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_slot",
		Description: "Discard the saved edits of a demo slot and reload its original scene",
	}, s.ResetSlot)
	return server
}

func main() {
	logger, err := observability.InitLoggerWithService("embedpool-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(logger, config.Load()); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := newMCPServer(&PoolServer{app: a, logger: logger})

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	err = a.Run(ctx, func(ctx context.Context) error {
		// the client closing stdin ends the whole process
		defer stop()
		return server.Run(ctx, transport)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w (mcp log: %s)", err, logBuffer.String())
	}
	return nil
}
