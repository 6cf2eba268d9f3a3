// Package ui is the interactive terminal front end.
//
// The flow is a small state machine: folder, method, mode (only for methods
// that support green screen), strength and confirmation. At any step "b"
// goes back one step and "q" quits.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/DennySORA/Remove-Background/internal/history"
	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/resolver"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// ErrQuit is returned when the user leaves the flow
var ErrQuit = errors.New("quit")

// Catalog lists the methods on offer; *registry.Registry implements it
type Catalog interface {
	List() []types.MethodDescriptor
	Descriptor(id types.MethodID) (types.MethodDescriptor, error)
}

type step int

const (
	stepFolder step = iota
	stepMethod
	stepMode
	stepStrength
	stepConfirm
	stepDone
)

// Prompter asks the user for one batch configuration
type Prompter struct {
	in            *bufio.Reader
	out           io.Writer
	catalog       Catalog
	history       *history.PathHistory
	outputDirName string
}

// NewPrompter creates a prompter reading answers from in. history may be nil.
func NewPrompter(in io.Reader, out io.Writer, catalog Catalog, hist *history.PathHistory, outputDirName string) *Prompter {
	if outputDirName == "" {
		outputDirName = utils.DefaultOutputDirName
	}
	return &Prompter{
		in:            bufio.NewReader(in),
		out:           out,
		catalog:       catalog,
		history:       hist,
		outputDirName: outputDirName,
	}
}

// selection accumulates answers while moving through the steps
type selection struct {
	folder   string
	images   []string
	method   types.MethodDescriptor
	mode     types.Mode
	strength float64
}

// Collect walks the user through the steps and returns the validated job and
// the images to process. ErrQuit means the user gave up.
func (p *Prompter) Collect() (types.JobConfiguration, []string, error) {
	var (
		sel selection
		job types.JobConfiguration
	)
	cur := stepFolder

	for cur != stepDone {
		next, err := p.ask(cur, &sel)
		if err != nil {
			return types.JobConfiguration{}, nil, err
		}
		if next == stepDone {
			job, err = resolver.Resolve(p.catalog, resolver.Request{
				Method:       sel.method.ID,
				Strength:     resolver.Strength(sel.strength),
				Mode:         sel.mode,
				SourceFolder: sel.folder,
				OutputFolder: filepath.Join(sel.folder, p.outputDirName),
			})
			if err != nil {
				fmt.Fprintf(p.out, "Error: %v\n", err)
				next = stepFolder
			}
		}
		cur = next
	}

	if p.history != nil {
		if err := p.history.Save(sel.folder); err != nil {
			fmt.Fprintf(p.out, "Warning: could not update folder history: %v\n", err)
		}
	}
	return job, sel.images, nil
}

func (p *Prompter) ask(s step, sel *selection) (step, error) {
	switch s {
	case stepFolder:
		return p.askFolder(sel)
	case stepMethod:
		return p.askMethod(sel)
	case stepMode:
		return p.askMode(sel)
	case stepStrength:
		return p.askStrength(sel)
	case stepConfirm:
		return p.askConfirm(sel)
	}
	return stepDone, nil
}

// answer is one line of input
type answer struct {
	text string
	back bool
}

// readLine reads a trimmed answer. "q" and end of input quit.
func (p *Prompter) readLine(prompt string) (answer, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		fmt.Fprintln(p.out)
		return answer{}, ErrQuit
	}
	text := strings.TrimSpace(line)
	switch strings.ToLower(text) {
	case "q", "quit", "exit":
		return answer{}, ErrQuit
	case "b", "back":
		return answer{back: true}, nil
	}
	return answer{text: text}, nil
}

func (p *Prompter) section(title string) {
	fmt.Fprintf(p.out, "\n--- %s ---\n", title)
}

func (p *Prompter) askFolder(sel *selection) (step, error) {
	p.section("Step 1: image folder")

	var recent []string
	if p.history != nil {
		recent = p.history.Load()
	}
	if len(recent) > 0 {
		fmt.Fprintln(p.out, "Recent folders:")
		for i, dir := range recent {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, dir)
		}
	}

	for {
		prompt := "Folder path (q to quit): "
		if len(recent) > 0 {
			prompt = "Number or folder path (Enter for 1, q to quit): "
		}
		a, err := p.readLine(prompt)
		if err != nil {
			return stepFolder, err
		}
		if a.back {
			fmt.Fprintln(p.out, "This is the first step.")
			continue
		}

		dir := a.text
		if n, convErr := strconv.Atoi(a.text); convErr == nil && n >= 1 && n <= len(recent) {
			dir = recent[n-1]
		} else if a.text == "" && len(recent) > 0 {
			dir = recent[0]
		}
		if dir == "" {
			fmt.Fprintln(p.out, "Path cannot be empty.")
			continue
		}

		abs, images, err := scanFolder(dir)
		if err != nil {
			fmt.Fprintf(p.out, "Error: %v\n", err)
			continue
		}
		if len(images) == 0 {
			fmt.Fprintf(p.out, "Error: no supported images in %s (%s)\n", abs, strings.Join(utils.SupportedExtensions(), ", "))
			continue
		}
		fmt.Fprintf(p.out, "Found %d images (%s).\n", len(images), utils.FormatFileSize(totalSize(images)))
		sel.folder, sel.images = abs, images
		return stepMethod, nil
	}
}

func scanFolder(dir string) (string, []string, error) {
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, err
	}
	if !utils.DirExists(abs) {
		return abs, nil, fmt.Errorf("%s is not a folder", abs)
	}
	images, err := utils.ListImageFiles(abs)
	if err != nil {
		return abs, nil, err
	}
	return abs, images, nil
}

func totalSize(paths []string) int64 {
	var n int64
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			n += info.Size()
		}
	}
	return n
}

func (p *Prompter) askMethod(sel *selection) (step, error) {
	p.section("Step 2: method")

	methods := p.catalog.List()
	for i, m := range methods {
		fmt.Fprintf(p.out, "  %d) %-14s [%s] %s\n", i+1, m.DisplayName, m.SpeedClass, m.Description)
	}

	for {
		a, err := p.readLine("Method (Enter for 1, b back): ")
		if err != nil {
			return stepMethod, err
		}
		if a.back {
			return stepFolder, nil
		}

		idx := 0
		if a.text != "" {
			n, convErr := strconv.Atoi(a.text)
			if convErr != nil {
				if d, lookupErr := p.catalog.Descriptor(types.MethodID(a.text)); lookupErr == nil {
					sel.method = d
					return p.afterMethod(sel), nil
				}
				fmt.Fprintf(p.out, "Enter a number between 1 and %d.\n", len(methods))
				continue
			}
			if n < 1 || n > len(methods) {
				fmt.Fprintf(p.out, "Enter a number between 1 and %d.\n", len(methods))
				continue
			}
			idx = n - 1
		}
		sel.method = methods[idx]
		return p.afterMethod(sel), nil
	}
}

// afterMethod skips the mode step for methods without green screen support
func (p *Prompter) afterMethod(sel *selection) step {
	if sel.method.SupportsGreenScreen {
		return stepMode
	}
	sel.mode = types.ModeGeneralPhoto
	return stepStrength
}

func (p *Prompter) askMode(sel *selection) (step, error) {
	p.section("Step 3: shooting mode")
	fmt.Fprintln(p.out, "  1) green-screen  (subject shot against a green backdrop)")
	fmt.Fprintln(p.out, "  2) general-photo")

	for {
		a, err := p.readLine("Mode (Enter for 1, b back): ")
		if err != nil {
			return stepMode, err
		}
		if a.back {
			return stepMethod, nil
		}
		switch strings.ToLower(a.text) {
		case "", "1", string(types.ModeGreenScreen):
			sel.mode = types.ModeGreenScreen
			return stepStrength, nil
		case "2", string(types.ModeGeneralPhoto):
			sel.mode = types.ModeGeneralPhoto
			return stepStrength, nil
		}
		fmt.Fprintln(p.out, "Enter 1 or 2.")
	}
}

func (p *Prompter) askStrength(sel *selection) (step, error) {
	p.section("Step 4: strength")
	fmt.Fprintln(p.out, "  lower keeps more edge detail, higher removes more aggressively")

	d := sel.method
	prev := stepMethod
	if d.SupportsGreenScreen {
		prev = stepMode
	}

	for {
		a, err := p.readLine(fmt.Sprintf("Strength [%.1f-%.1f] (Enter for %.2f, b back): ", d.MinStrength, d.MaxStrength, d.DefaultStrength))
		if err != nil {
			return stepStrength, err
		}
		if a.back {
			return prev, nil
		}
		if a.text == "" {
			sel.strength = d.DefaultStrength
			return stepConfirm, nil
		}
		v, convErr := strconv.ParseFloat(a.text, 64)
		if convErr != nil {
			fmt.Fprintln(p.out, "Enter a number.")
			continue
		}
		if !d.InBounds(v) {
			fmt.Fprintf(p.out, "Enter a value between %.1f and %.1f.\n", d.MinStrength, d.MaxStrength)
			continue
		}
		sel.strength = v
		return stepConfirm, nil
	}
}

func (p *Prompter) askConfirm(sel *selection) (step, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, strings.Repeat("=", 48))
	fmt.Fprintln(p.out, "Confirm")
	fmt.Fprintln(p.out, strings.Repeat("=", 48))
	fmt.Fprintf(p.out, "  Folder:   %s (%d images)\n", sel.folder, len(sel.images))
	fmt.Fprintf(p.out, "  Method:   %s (%s)\n", sel.method.DisplayName, sel.method.ID)
	fmt.Fprintf(p.out, "  Mode:     %s\n", sel.mode)
	fmt.Fprintf(p.out, "  Strength: %.2f\n", sel.strength)
	fmt.Fprintf(p.out, "  Output:   %s\n", filepath.Join(sel.folder, p.outputDirName))

	for {
		a, err := p.readLine("Start processing? [Y/n/b]: ")
		if err != nil {
			return stepConfirm, err
		}
		if a.back {
			return stepStrength, nil
		}
		switch strings.ToLower(a.text) {
		case "", "y", "yes":
			return stepDone, nil
		case "n", "no":
			return stepConfirm, ErrQuit
		}
		fmt.Fprintln(p.out, "Answer y, n or b.")
	}
}

// AskAgain asks whether to process another batch
func (p *Prompter) AskAgain() bool {
	a, err := p.readLine("\nProcess another batch? [y/N]: ")
	if err != nil || a.back {
		return false
	}
	switch strings.ToLower(a.text) {
	case "y", "yes":
		return true
	}
	return false
}
