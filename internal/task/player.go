package task

import (
	"fmt"
	"image"

	"orebot/internal/mousedb"
)

// StepResult describes what one Player step did.
type StepResult struct {
	// Moved is set when a point was consumed this step.
	Moved bool
	// Pos is where the cursor was sent.
	Pos image.Point
	// Finished is set when the consumed point was the last of its movement.
	// Phase is the click issued with it.
	Finished bool
	Phase    mousedb.ClickState
}

type playback struct {
	points []mousedb.MousePoint
	phase  mousedb.ClickState
}

// Player replays movements through an Input, one point at a time. The head
// point's dwell is counted down by each step's dt; once it runs out the point
// is consumed and the cursor sent there. The last point of each movement is
// sent with the movement's click phase instead of a plain move.
type Player struct {
	input  Input
	button mousedb.Button
	queue  []playback
}

// NewPlayer creates an idle player clicking with button.
func NewPlayer(input Input, button mousedb.Button) *Player {
	return &Player{input: input, button: button}
}

// Play replaces anything queued with m. phase is issued on m's last point;
// ClickMove only moves. Invalid movements are ignored.
func (p *Player) Play(m mousedb.MouseMovement, phase mousedb.ClickState) {
	p.queue = p.queue[:0]
	p.Enqueue(m, phase)
}

// Enqueue adds m after whatever is already queued.
func (p *Player) Enqueue(m mousedb.MouseMovement, phase mousedb.ClickState) {
	if !m.IsValid() {
		return
	}
	points := make([]mousedb.MousePoint, len(m.Points))
	copy(points, m.Points)
	p.queue = append(p.queue, playback{points: points, phase: phase})
}

// Active reports whether any point is left to play.
func (p *Player) Active() bool {
	return len(p.queue) > 0
}

// Clear drops everything queued.
func (p *Player) Clear() {
	p.queue = p.queue[:0]
}

// Remaining returns the positions still to be played, in order.
func (p *Player) Remaining() []image.Point {
	var out []image.Point
	for _, pb := range p.queue {
		for _, pt := range pb.points {
			out = append(out, pt.Pos)
		}
	}
	return out
}

// Step counts the head point's dwell down by dt and consumes it when it has
// run out. At most one point is consumed per step. The point is consumed even
// when the input fails, so a broken input cannot stall playback.
func (p *Player) Step(dt float64) (StepResult, error) {
	if len(p.queue) == 0 {
		return StepResult{}, nil
	}

	head := &p.queue[0]
	pt := &head.points[0]
	pt.DeltaTime -= dt
	if pt.DeltaTime > 0 {
		return StepResult{}, nil
	}

	res := StepResult{Moved: true, Pos: pt.Pos}
	head.points = head.points[1:]
	if len(head.points) > 0 {
		if err := p.input.SetCursor(res.Pos); err != nil {
			return res, fmt.Errorf("move to %v: %w", res.Pos, err)
		}
		return res, nil
	}

	res.Finished = true
	res.Phase = head.phase
	p.queue = p.queue[1:]

	var err error
	if res.Phase == mousedb.ClickMove {
		err = p.input.SetCursor(res.Pos)
	} else {
		err = p.input.Click(res.Pos, p.button, res.Phase)
	}
	if err != nil {
		return res, fmt.Errorf("%s at %v: %w", res.Phase, res.Pos, err)
	}
	return res, nil
}
