package scan

import (
	"math"
	"testing"
)

func collect(p *Plan) []Point {
	var pts []Point
	for {
		pt, ok := p.Next()
		if !ok {
			return pts
		}
		pts = append(pts, pt)
	}
}

func TestPlanLengthAndOrder(t *testing.T) {
	for n := 1; n <= 20; n++ {
		p := NewPlan(n, 0, 0)
		pts := collect(p)

		if len(pts) != n*n {
			t.Fatalf("N=%d: length = %d, want %d", n, len(pts), n*n)
		}

		for row := 0; row < n; row++ {
			rowPts := pts[row*n : (row+1)*n]

			// One y per row, rows spaced by the grid pitch.
			wantY := 1.5*Spacing + float64(row)*Spacing
			for _, pt := range rowPts {
				if math.Abs(pt.Y-wantY) > 1e-9 {
					t.Fatalf("N=%d row=%d: y = %v, want %v", n, row, pt.Y, wantY)
				}
			}

			// Even rows increase in x; odd rows are the exact reverse.
			for i := 1; i < n; i++ {
				if row%2 == 0 && rowPts[i].X <= rowPts[i-1].X {
					t.Fatalf("N=%d row=%d: x not increasing", n, row)
				}
				if row%2 == 1 && rowPts[i].X >= rowPts[i-1].X {
					t.Fatalf("N=%d row=%d: x not decreasing", n, row)
				}
			}
			if row%2 == 1 {
				prev := pts[(row-1)*n : row*n]
				for i := 0; i < n; i++ {
					if math.Abs(rowPts[i].X-prev[n-1-i].X) > 1e-9 {
						t.Fatalf("N=%d row=%d: not the exact reverse of row %d", n, row, row-1)
					}
				}
			}
		}
	}
}

func TestPlanFirstTarget(t *testing.T) {
	p := NewPlan(3, 0, 0)
	pt, ok := p.Next()
	if !ok {
		t.Fatal("empty plan")
	}
	if math.Abs(pt.X-0.585) > 1e-9 || math.Abs(pt.Y-0.585) > 1e-9 {
		t.Errorf("first target = %v, want (0.585, 0.585)", pt)
	}
}

func TestPlanStartOffsets(t *testing.T) {
	p := NewPlan(2, 1.0, 2.0)
	pt, _ := p.Next()
	if math.Abs(pt.X-1.585) > 1e-9 || math.Abs(pt.Y-2.585) > 1e-9 {
		t.Errorf("offset target = %v", pt)
	}
}

func TestPlanOddFinalRowForward(t *testing.T) {
	p := NewPlan(3, 0, 0)
	pts := collect(p)

	last := pts[6:9]
	if last[0].X >= last[1].X || last[1].X >= last[2].X {
		t.Errorf("odd-N final row not forward: %v", last)
	}
}

func TestPlanNonRestartable(t *testing.T) {
	p := NewPlan(2, 0, 0)
	collect(p)
	if _, ok := p.Next(); ok {
		t.Error("exhausted plan produced another target")
	}
	if p.Remaining() != 0 {
		t.Errorf("Remaining = %d", p.Remaining())
	}
}
