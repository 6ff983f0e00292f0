package panel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	colorPrimary lipgloss.Color = "7"
	colorMuted   lipgloss.Color = "8"
	colorInfo    lipgloss.Color = "6"

	placeholder = "-"
)

// Panel keeps the latest value of every selected metric per device and
// renders them as a table. It runs as a scheduler processor after the
// collectors so each tick prints one table.
type Panel struct {
	out     io.Writer
	specs   []metric.Spec
	devices []device.Device

	header lipgloss.Style
	cell   lipgloss.Style
	label  lipgloss.Style
	border lipgloss.Style

	mu     sync.Mutex
	values map[string]map[int]metric.Value
}

func New(out io.Writer, specs []metric.Spec, devices []device.Device) *Panel {
	return &Panel{
		out:     out,
		specs:   specs,
		devices: devices,
		header:  lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1),
		cell:    lipgloss.NewStyle().Foreground(colorPrimary).Padding(0, 1),
		label:   lipgloss.NewStyle().Foreground(colorInfo).Padding(0, 1),
		border:  lipgloss.NewStyle().Foreground(colorMuted),
		values:  make(map[string]map[int]metric.Value, len(specs)),
	}
}

// Observer returns the observer that stores values of the given metric.
func (p *Panel) Observer(key string) collector.Observer {
	return collector.ObserverFunc(func(dev int, value metric.Value) {
		p.mu.Lock()
		defer p.mu.Unlock()

		byDevice, ok := p.values[key]
		if !ok {
			byDevice = make(map[int]metric.Value, len(p.devices))
			p.values[key] = byDevice
		}
		byDevice[dev] = value
	})
}

// Value returns the latest value of key for a device.
func (p *Panel) Value(key string, dev int) (metric.Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.values[key][dev]
	return v, ok
}

// Render returns the table of current values, one row per device.
// Metrics without a value yet show a placeholder.
func (p *Panel) Render() string {
	headers := make([]string, 0, len(p.specs)+1)
	headers = append(headers, "GPU")
	for _, spec := range p.specs {
		headers = append(headers, spec.DisplayName)
	}

	rows := make([][]string, 0, len(p.devices))
	p.mu.Lock()
	for _, d := range p.devices {
		row := make([]string, 0, len(headers))
		row = append(row, deviceLabel(d))
		for _, spec := range p.specs {
			v, ok := p.values[spec.Key][d.Index]
			if !ok {
				row = append(row, placeholder)
				continue
			}
			row = append(row, v.String())
		}
		rows = append(rows, row)
	}
	p.mu.Unlock()

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return p.header
			case col == 0:
				return p.label
			default:
				return p.cell
			}
		})

	return t.Render()
}

func (*Panel) Name() string {
	return "panel"
}

// Process writes the current table.
func (p *Panel) Process(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(p.out, p.Render())
	return err
}

func deviceLabel(d device.Device) string {
	if d.Name == "" {
		return strconv.Itoa(d.Index)
	}
	return strconv.Itoa(d.Index) + ": " + d.Name
}
