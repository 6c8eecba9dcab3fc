package blendtree

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

var _ skeleton.PoseSource = (*Tree)(nil)

const bones = 2

func moveX(x float32) math.Transform {
	return math.NewTransformSRT(math.One3(), math.QuatIdentity(), math.Vec3{X: x})
}

// clipX returns a clip whose frame i moves bone 0 to xs[i].
func clipX(xs ...float32) *skeleton.SkeletalAnim {
	clip := &skeleton.SkeletalAnim{Name: "clip"}
	for _, x := range xs {
		f := skeleton.NewFrame(bones)
		f.Set(0, moveX(x))
		clip.Frames = append(clip.Frames, f)
	}
	return clip
}

func boneX(t *testing.T, out Output, bone int) float32 {
	t.Helper()
	_, _, p, err := out.Frame.Transforms[bone].SRT()
	if err != nil {
		t.Fatalf("bone %d: %v", bone, err)
	}
	return p.X
}

func near(a, b float32) bool {
	return stdmath.Abs(float64(a-b)) < 1e-3
}

func mustOutput(t *testing.T, tr *Tree) Output {
	t.Helper()
	out, err := tr.Output()
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	return out
}

func mustID(t *testing.T, id NodeID, err error) NodeID {
	t.Helper()
	if err != nil {
		t.Fatalf("add node: %v", err)
	}
	return id
}

func TestBlend_MaskPolicy(t *testing.T) {
	fa := skeleton.NewFrame(4)
	fb := skeleton.NewFrame(4)
	for i := 0; i < 4; i++ {
		fa.Set(i, moveX(2))
		fb.Set(i, moveX(4))
	}
	a := Output{Frame: fa, Mask: skeleton.AnimMask{true, true, false, false}}
	b := Output{Frame: fb, Mask: skeleton.AnimMask{true, false, true, false}}

	mask := skeleton.NewAnimMask(4, true)
	out := Blend(a, b, 0.5, mask)

	want := []float32{3, 2, 4, 0}
	for i, w := range want {
		if got := boneX(t, out, i); !near(got, w) {
			t.Errorf("bone %d: x = %v, want %v", i, got, w)
		}
	}
	if out.Frame.Has[3] {
		t.Error("bone passed by neither mask should not override")
	}
	if len(out.Mask) != 4 || !out.Mask[3] {
		t.Error("output should carry the node mask")
	}
}

func TestLeaf_PlayTypes(t *testing.T) {
	tests := []struct {
		name string
		play PlayType
		want []float32
	}{
		{"loop", Loop, []float32{0, 1, 2, 0, 1}},
		{"once", Once, []float32{0, 1, 2, 2, 2}},
		{"ping pong", PingPong, []float32{0, 1, 2, 1, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New("test", bones)
			leaf := tr.AddLeaf("leaf", clipX(0, 1, 2), nil, tt.play)
			if err := tr.SetFinal(leaf); err != nil {
				t.Fatal(err)
			}
			for i, w := range tt.want {
				if got := boneX(t, mustOutput(t, tr), 0); !near(got, w) {
					t.Fatalf("tick %d: x = %v, want %v", i+1, got, w)
				}
			}
		})
	}
}

func TestLeaf_OnceKeepingEnd(t *testing.T) {
	tr := New("test", bones)
	leaf := tr.AddLeaf("leaf", clipX(0, 1, 2), nil, Once)
	_ = tr.SetFinal(leaf)

	for i := 0; i < 2; i++ {
		mustOutput(t, tr)
		if tr.KeepingEnd(leaf) {
			t.Fatalf("tick %d: keeping end before the last frame", i+1)
		}
	}
	mustOutput(t, tr)
	if !tr.KeepingEnd(leaf) {
		t.Fatal("last frame should set keeping end")
	}

	if err := tr.ResetFrame(leaf); err != nil {
		t.Fatal(err)
	}
	if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
		t.Fatalf("after reset x = %v, want 0", got)
	}
}

func TestTree_EvaluatesSharedNodeOncePerTick(t *testing.T) {
	tr := New("diamond", bones)
	leaf := tr.AddLeaf("walk", clipX(0, 1, 2, 3, 4), nil, Loop)
	leftID, leftErr := tr.AddBlend2("left", nil, leaf, leaf)
	left := mustID(t, leftID, leftErr)
	rightID, rightErr := tr.AddBlend2("right", nil, leaf, leaf)
	right := mustID(t, rightID, rightErr)
	topID, topErr := tr.AddBlend2("top", nil, left, right)
	top := mustID(t, topID, topErr)
	_ = tr.SetBlendValue(top, 0.5)
	_ = tr.SetFinal(top)

	for tick := 0; tick < 3; tick++ {
		out := mustOutput(t, tr)
		if got := boneX(t, out, 0); !near(got, float32(tick)) {
			t.Fatalf("tick %d: x = %v, want %v", tick+1, got, tick)
		}
		if got := tr.CurrentFrame(leaf); got != tick+1 {
			t.Fatalf("tick %d: leaf at frame %d, want %d", tick+1, got, tick+1)
		}
	}
	if tr.Tick() != 3 {
		t.Fatalf("Tick() = %d, want 3", tr.Tick())
	}
}

func TestBlend3(t *testing.T) {
	tr := New("test", bones)
	mid := tr.AddLeaf("mid", clipX(0), nil, Loop)
	high := tr.AddLeaf("high", clipX(10), nil, Loop)
	low := tr.AddLeaf("low", clipX(-10), nil, Loop)
	bID, bErr := tr.AddBlend3("b", nil, mid, high, low)
	b := mustID(t, bID, bErr)
	_ = tr.SetFinal(b)

	tests := []struct {
		value float32
		want  float32
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{-0.25, -2.5},
		{-3, -10},
	}
	for _, tt := range tests {
		if err := tr.SetBlendValue(b, tt.value); err != nil {
			t.Fatal(err)
		}
		if got := boneX(t, mustOutput(t, tr), 0); !near(got, tt.want) {
			t.Errorf("value %v: x = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSwitch(t *testing.T) {
	tr := New("test", bones)
	a := tr.AddLeaf("a", clipX(0), nil, Loop)
	b := tr.AddLeaf("b", clipX(4), nil, Loop)
	swID, swErr := tr.AddSwitch("sw", nil, a, b, 4)
	sw := mustID(t, swID, swErr)
	_ = tr.SetFinal(sw)

	if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
		t.Fatalf("flag off x = %v, want 0", got)
	}
	_ = tr.SetFlag(sw, true)
	for i, w := range []float32{1, 2, 3, 4, 4} {
		if got := boneX(t, mustOutput(t, tr), 0); !near(got, w) {
			t.Fatalf("fade in tick %d: x = %v, want %v", i+1, got, w)
		}
	}
	_ = tr.SetFlag(sw, false)
	for i, w := range []float32{3, 2, 1, 0, 0} {
		if got := boneX(t, mustOutput(t, tr), 0); !near(got, w) {
			t.Fatalf("fade out tick %d: x = %v, want %v", i+1, got, w)
		}
	}
}

func TestOneShot(t *testing.T) {
	tests := []struct {
		name    string
		end     ShotEnd
		want    []float32
		running bool
	}{
		{"recover", Recover, []float32{5, 10, 5, 0, 0}, false},
		{"keep", Keep, []float32{5, 10, 10, 10, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New("test", bones)
			idle := tr.AddLeaf("idle", clipX(0), nil, Loop)
			attack := tr.AddLeaf("attack", clipX(10, 10, 10), nil, Loop)
			shotID, shotErr := tr.AddOneShot("shot", nil, idle, attack, tt.end, 2)
			shot := mustID(t, shotID, shotErr)
			_ = tr.SetFinal(shot)

			if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
				t.Fatalf("idle x = %v, want 0", got)
			}
			if err := tr.StartShot(shot); err != nil {
				t.Fatal(err)
			}
			for i, w := range tt.want {
				if got := boneX(t, mustOutput(t, tr), 0); !near(got, w) {
					t.Fatalf("tick %d: x = %v, want %v", i+1, got, w)
				}
			}
			if tr.ShotRunning(shot) != tt.running {
				t.Fatalf("ShotRunning = %v, want %v", tr.ShotRunning(shot), tt.running)
			}

			_ = tr.StopShot(shot)
			if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
				t.Fatalf("after stop x = %v, want 0", got)
			}
		})
	}
}

func TestTranslate2(t *testing.T) {
	tr := New("test", bones)
	stand := tr.AddLeaf("stand", clipX(0), nil, Loop)
	sit := tr.AddLeaf("sit", clipX(10), nil, Loop)
	trans := make([]float32, 20)
	for i := range trans {
		trans[i] = 5
	}
	down := tr.AddLeaf("down", clipX(trans...), nil, Loop)
	up := tr.AddLeaf("up", clipX(trans...), nil, Loop)
	nodeID, nodeErr := tr.AddTranslate2("posture", nil, stand, sit, down, up)
	node := mustID(t, nodeID, nodeErr)
	_ = tr.SetFinal(node)

	if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
		t.Fatalf("resting x = %v, want 0", got)
	}

	_ = tr.SetFlag(node, true)
	// Fade in over the first tenth of the transition.
	for i, w := range []float32{0, 2.5, 5} {
		if got := boneX(t, mustOutput(t, tr), 0); !near(got, w) {
			t.Fatalf("tick %d: x = %v, want %v", i+1, got, w)
		}
	}
	// Ignored while translating.
	_ = tr.SetFlag(node, false)

	var last float32
	for i := 3; i < 20; i++ {
		last = boneX(t, mustOutput(t, tr), 0)
	}
	if !near(last, 7.5) {
		t.Fatalf("last transition frame x = %v, want 7.5", last)
	}
	if got := boneX(t, mustOutput(t, tr), 0); got != 10 {
		t.Fatalf("after transition x = %v, want 10", got)
	}

	_ = tr.SetFlag(node, false)
	if got := boneX(t, mustOutput(t, tr), 0); !near(got, 10) {
		t.Fatalf("start of return x = %v, want 10", got)
	}
	for i := 1; i < 20; i++ {
		mustOutput(t, tr)
	}
	if got := boneX(t, mustOutput(t, tr), 0); got != 0 {
		t.Fatalf("after return x = %v, want 0", got)
	}
}

func TestBlend9Pos(t *testing.T) {
	tr := New("test", bones)
	var inputs [9]NodeID
	for i := range inputs {
		inputs[i] = tr.AddLeaf("dir", clipX(float32(i)), nil, Loop)
	}
	gridID, gridErr := tr.AddBlend9Pos("move", nil, inputs)
	grid := mustID(t, gridID, gridErr)
	_ = tr.SetFinal(grid)

	tests := []struct {
		pos  math.Vec2
		want float32
	}{
		{math.Vec2{X: -1, Y: 1}, 0},
		{math.Vec2{X: 1, Y: 1}, 2},
		{math.Vec2{X: 0, Y: 0}, 4},
		{math.Vec2{X: -1, Y: -1}, 6},
		{math.Vec2{X: 1, Y: -1}, 8},
		{math.Vec2{X: 0.5, Y: 0}, 4.5},
		{math.Vec2{X: 0, Y: -0.5}, 5.5},
		{math.Vec2{X: 0.5, Y: 0.5}, 3},
		{math.Vec2{X: 5, Y: -5}, 8},
	}
	for _, tt := range tests {
		if err := tr.SetBlendPos(grid, tt.pos); err != nil {
			t.Fatal(err)
		}
		if got := boneX(t, mustOutput(t, tr), 0); !near(got, tt.want) {
			t.Errorf("pos %v: x = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestDirect(t *testing.T) {
	f := skeleton.NewFrame(bones)
	f.Set(1, moveX(7))
	tr := New("test", bones)
	d := tr.AddDirect("fixed", Output{Frame: f})
	_ = tr.SetFinal(d)

	frame, mask := tr.Pose()
	if frame != f {
		t.Fatal("direct node should output its frame")
	}
	if !mask.Get(1) {
		t.Fatal("nil mask should pass every bone")
	}
	if !tr.KeepingEnd(d) {
		t.Fatal("direct node always keeps its end")
	}
}

func TestTree_Errors(t *testing.T) {
	tr := New("test", bones)
	if _, err := tr.Output(); !errors.Is(err, ErrNoFinalNode) {
		t.Fatalf("Output without final: %v", err)
	}
	if frame, _ := tr.Pose(); frame != nil {
		t.Fatal("Pose without final should rest")
	}

	leaf := tr.AddLeaf("leaf", clipX(0), nil, Loop)
	if _, err := tr.AddBlend2("b", nil, leaf, 9); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("unknown input: %v", err)
	}
	if err := tr.SetFlag(leaf, true); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("SetFlag on leaf: %v", err)
	}
	bID, bErr := tr.AddBlend2("b", nil, leaf, leaf)
	b := mustID(t, bID, bErr)
	if _, err := tr.AddOneShot("shot", nil, leaf, b, Recover, 0); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("non-leaf shot: %v", err)
	}
	if err := tr.SetFinal(42); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("SetFinal unknown: %v", err)
	}
}

func TestLeaf_ChangeAnimation(t *testing.T) {
	tr := New("test", bones)
	leaf := tr.AddLeaf("leaf", clipX(0, 1, 2, 3), nil, Loop)
	direct := tr.AddDirect("direct", Output{})
	_ = tr.SetFinal(leaf)

	mustOutput(t, tr)
	mustOutput(t, tr)
	if got := tr.Ratio(leaf); !near(got, 0.5) {
		t.Errorf("ratio after two ticks = %v, want 0.5", got)
	}

	if err := tr.ChangeAnimation(leaf, clipX(7, 8)); err != nil {
		t.Fatalf("ChangeAnimation: %v", err)
	}
	if got := tr.Ratio(leaf); got != 0 {
		t.Errorf("ratio after change = %v, want 0", got)
	}
	if got := boneX(t, mustOutput(t, tr), 0); !near(got, 7) {
		t.Errorf("first frame of new clip: x = %v, want 7", got)
	}

	if err := tr.ChangeAnimation(direct, clipX(1)); err == nil {
		t.Error("ChangeAnimation accepted a direct node")
	}
	if got := tr.Ratio(direct); got != 0 {
		t.Errorf("ratio of a direct node = %v", got)
	}
}
