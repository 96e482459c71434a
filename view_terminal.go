package livetiming

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/charmbracelet/lipgloss"
)

const (
	clearScreen = "\033[H\033[2J"

	gaugeWidth = 20
)

var (
	subtle = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	red    = lipgloss.Color("#CF040E")
	green  = lipgloss.Color("#17C81D")
	purple = lipgloss.Color("#DA0ED3")

	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(subtle)
	cellStyle    = lipgloss.NewStyle().Width(14)
	fastestStyle = lipgloss.NewStyle().Width(14).Foreground(purple).Bold(true)
	readyStyle   = lipgloss.NewStyle().Foreground(red)
	goStyle      = lipgloss.NewStyle().Foreground(green).Bold(true)
	offStyle     = lipgloss.NewStyle().Foreground(subtle)
)

type terminalCar struct {
	laps         int
	lastLap      string
	personalBest string
	fastestLap   bool
	fuel         float64
	fuelReported bool
}

// TerminalView draws the dashboard as a table on a terminal. Changes are collected and the
// board is redrawn at most once per refresh interval.
type TerminalView struct {
	out      io.Writer
	interval time.Duration

	cars     [NumCars]terminalCar
	lights   [GoLight + 1]bool
	throttle map[carrera.CarID]float64

	dirty bool
	mutex sync.Mutex
}

func NewTerminalView(out io.Writer, interval time.Duration) *TerminalView {
	return &TerminalView{
		out:      out,
		interval: interval,
		throttle: make(map[carrera.CarID]float64),
		dirty:    true,
	}
}

func (tv *TerminalView) update(fn func()) {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()

	fn()
	tv.dirty = true
}

func (tv *TerminalView) SetLapCount(car carrera.CarID, laps int) {
	tv.update(func() { tv.car(car).laps = laps })
}

func (tv *TerminalView) SetLastLap(car carrera.CarID, lapTime string) {
	tv.update(func() { tv.car(car).lastLap = lapTime })
}

func (tv *TerminalView) SetPersonalBest(car carrera.CarID, lapTime string) {
	tv.update(func() { tv.car(car).personalBest = lapTime })
}

func (tv *TerminalView) SetFastestLap(car carrera.CarID, holder bool) {
	tv.update(func() { tv.car(car).fastestLap = holder })
}

func (tv *TerminalView) SetFuel(car carrera.CarID, percent float64) {
	tv.update(func() {
		c := tv.car(car)
		c.fuel = percent
		c.fuelReported = true
	})
}

func (tv *TerminalView) SetLight(light int, on bool) {
	if light < 1 || light > GoLight {
		return
	}

	tv.update(func() { tv.lights[light] = on })
}

func (tv *TerminalView) SetThrottle(controller carrera.CarID, percent float64) {
	tv.update(func() { tv.throttle[controller] = percent })
}

var discardCar terminalCar

func (tv *TerminalView) car(car carrera.CarID) *terminalCar {
	if int(car) >= NumCars {
		// the dashboard never renders cars it does not track
		return &discardCar
	}

	return &tv.cars[car]
}

// Run redraws the board whenever it has changed, until ctx is cancelled.
func (tv *TerminalView) Run(ctx context.Context) error {
	ticker := time.NewTicker(tv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tv.mutex.Lock()

			if !tv.dirty {
				tv.mutex.Unlock()
				continue
			}

			board := tv.board()
			tv.dirty = false
			tv.mutex.Unlock()

			if _, err := fmt.Fprint(tv.out, clearScreen+board+"\n"); err != nil {
				return err
			}
		}
	}
}

// board renders the board. The caller must hold the mutex.
func (tv *TerminalView) board() string {
	rows := []string{
		titleStyle.Render("Carrera Live Timing") + "  " + tv.lightsView(),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Render(headerStyle.Render("Car")),
			cellStyle.Render(headerStyle.Render("Laps")),
			cellStyle.Render(headerStyle.Render("Last")),
			cellStyle.Render(headerStyle.Render("Best")),
			headerStyle.Render("Fuel"),
		),
	}

	for i, car := range tv.cars {
		bestStyle := cellStyle

		if car.fastestLap {
			bestStyle = fastestStyle
		}

		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Render(strconv.Itoa(i+1)),
			cellStyle.Render(strconv.Itoa(car.laps)),
			cellStyle.Render(orDash(car.lastLap)),
			bestStyle.Render(orDash(car.personalBest)),
			fuelGauge(car),
		))
	}

	if len(tv.throttle) > 0 {
		rows = append(rows, "")

		for controller := carrera.CarID(0); int(controller) < carrera.NumTrackedCars; controller++ {
			percent, ok := tv.throttle[controller]

			if !ok {
				continue
			}

			rows = append(rows, fmt.Sprintf("Controller %d  %s", controller+1, gauge(percent)))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (tv *TerminalView) lightsView() string {
	var b strings.Builder

	for light := 1; light <= carrera.MaxLights; light++ {
		if tv.lights[light] {
			b.WriteString(readyStyle.Render("●"))
		} else {
			b.WriteString(offStyle.Render("○"))
		}
	}

	b.WriteString(" ")

	if tv.lights[GoLight] {
		b.WriteString(goStyle.Render("GO"))
	} else {
		b.WriteString(offStyle.Render("GO"))
	}

	return b.String()
}

func fuelGauge(car terminalCar) string {
	if !car.fuelReported {
		return "-"
	}

	return gauge(car.fuel)
}

func gauge(percent float64) string {
	filled := int(math.Round(percent / 100 * gaugeWidth))

	if filled < 0 {
		filled = 0
	} else if filled > gaugeWidth {
		filled = gaugeWidth
	}

	return strings.Repeat("█", filled) + offStyle.Render(strings.Repeat("░", gaugeWidth-filled)) + fmt.Sprintf(" %3.0f%%", percent)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
