package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/treegest/internal/browser"
	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type captureFlags struct {
	renderFlags
	snapshot string
	control  string
}

func newCaptureCmd() *cobra.Command {
	var opts captureFlags
	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a live page's accessibility tree and render it",
		Long: `Opens the page in a browser (BROWSER_CONTROL_URL, or a locally launched one),
converts its accessibility tree and prints the visual tree. --snapshot also
saves the captured tree so it can be rendered again offline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, args[0], opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "write the captured tree to this .yaml or .json file")
	cmd.Flags().StringVar(&opts.control, "control-url", "", "DevTools websocket of a running browser")
	return cmd
}

func runCapture(cmd *cobra.Command, url string, opts captureFlags) error {
	params := opts.params(cmd)
	if err := params.Validate(); err != nil {
		return err
	}
	control := cfg.BrowserControlURL
	if opts.control != "" {
		control = opts.control
	}
	capt := browser.NewCapturer(browser.Options{
		ControlURL: control,
		Headless:   cfg.BrowserHeadless,
		Timeout:    cfg.CaptureTimeout,
		Logger:     logger,
	})
	defer capt.Close()

	tree, err := capt.Capture(cmd.Context(), url)
	if err != nil {
		return err
	}

	if opts.snapshot != "" {
		if err := saveSnapshot(opts.snapshot, tree); err != nil {
			return err
		}
		logger.Info("snapshot written", zap.String("path", opts.snapshot), zap.Int("elements", tree.Len()))
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	res, err := svc.RenderTree(cmd.Context(), tree, params)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res, opts.renderFlags)
}

func saveSnapshot(path string, tree *element.Tree) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	asJSON := strings.EqualFold(filepath.Ext(path), ".json")
	if err := source.WriteSnapshot(f, tree, asJSON); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
