// Package blendtree mixes animation clips per bone. Nodes form a DAG that
// flows from clip players into a single final node; each node caches its
// output for the tick it was computed in, so nodes shared by several parents
// are evaluated once per tick.
package blendtree

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Tree errors.
var (
	ErrInvalidNode = errors.New("invalid blend tree node")
	ErrWrongKind   = errors.New("wrong blend tree node kind")
	ErrNoFinalNode = errors.New("blend tree has no final node")
)

// Kind tags a node's variant.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindBlend2
	KindBlend3
	KindSwitch
	KindOneShot
	KindTranslate2
	KindBlend9Pos
	KindDirect
)

var kindNames = [...]string{"Leaf", "Blend2", "Blend3", "Switch", "OneShot", "Translate2", "Blend9Pos", "Direct"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// PlayType is how a leaf advances through its clip.
type PlayType uint8

const (
	Loop PlayType = iota
	Once
	PingPong
)

// ShotEnd is what a one-shot does when its clip finishes.
type ShotEnd uint8

const (
	// Recover fades the shot back out to the input.
	Recover ShotEnd = iota
	// Keep holds the shot's last frame over the input.
	Keep
)

// Defaults from the engine's node constructors.
const (
	DefaultFadeTicks           = 10
	DefaultSwitchTicks         = 10
	DefaultTranslateBlendRatio = 0.1
)

// NodeID indexes a node in its tree.
type NodeID int

type node struct {
	kind   Kind
	name   string
	mask   skeleton.AnimMask
	inputs []NodeID

	lastTick int
	out      Output

	// Leaf
	clip       *skeleton.SkeletalAnim
	play       PlayType
	frame      int
	backwards  bool
	keepingEnd bool

	// Blend2 factor, Blend3 value in [-1, 1].
	value float32

	// Switch and Translate2
	flag        bool
	switchTicks int
	blend       float32
	translating bool
	ratio       float32

	// OneShot
	fadeTicks int
	shotEnd   ShotEnd
	runShot   bool
	shotTick  int

	// Blend9Pos
	pos math.Vec2
}

// Tree is a blend tree over one skeleton's anim bones.
type Tree struct {
	Name string

	nodes     []node
	final     NodeID
	tick      int
	boneCount int
}

// New returns an empty tree for frames of boneCount anim bones.
func New(name string, boneCount int) *Tree {
	return &Tree{Name: name, final: -1, boneCount: boneCount}
}

func (t *Tree) add(n node) NodeID {
	n.lastTick = -1
	if n.mask == nil {
		n.mask = skeleton.NewAnimMask(t.boneCount, true)
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// checkInputs requires every input to exist already, which keeps the graph
// acyclic.
func (t *Tree) checkInputs(name string, ids ...NodeID) error {
	for _, id := range ids {
		if id < 0 || int(id) >= len(t.nodes) {
			return fmt.Errorf("%w: %s input %d", ErrInvalidNode, name, id)
		}
	}
	return nil
}

func (t *Tree) nodeOf(id NodeID, kinds ...Kind) (*node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, id)
	}
	n := &t.nodes[id]
	for _, k := range kinds {
		if n.kind == k {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, n.name, n.kind)
}

// AddLeaf adds a clip player. A nil mask passes every bone.
func (t *Tree) AddLeaf(name string, clip *skeleton.SkeletalAnim, mask skeleton.AnimMask, play PlayType) NodeID {
	return t.add(node{kind: KindLeaf, name: name, clip: clip, mask: mask, play: play})
}

// AddBlend2 blends a toward b by the node's blend value.
func (t *Tree) AddBlend2(name string, mask skeleton.AnimMask, a, b NodeID) (NodeID, error) {
	if err := t.checkInputs(name, a, b); err != nil {
		return -1, err
	}
	return t.add(node{kind: KindBlend2, name: name, mask: mask, inputs: []NodeID{a, b}}), nil
}

// AddBlend3 blends mid toward high for positive values and toward low for
// negative ones.
func (t *Tree) AddBlend3(name string, mask skeleton.AnimMask, mid, high, low NodeID) (NodeID, error) {
	if err := t.checkInputs(name, mid, high, low); err != nil {
		return -1, err
	}
	return t.add(node{kind: KindBlend3, name: name, mask: mask, inputs: []NodeID{mid, high, low}}), nil
}

// AddSwitch fades between a (flag off) and b (flag on) over switchTicks.
func (t *Tree) AddSwitch(name string, mask skeleton.AnimMask, a, b NodeID, switchTicks int) (NodeID, error) {
	if err := t.checkInputs(name, a, b); err != nil {
		return -1, err
	}
	if switchTicks <= 0 {
		switchTicks = DefaultSwitchTicks
	}
	return t.add(node{kind: KindSwitch, name: name, mask: mask, inputs: []NodeID{a, b}, switchTicks: switchTicks}), nil
}

// AddOneShot overlays the shot leaf on input while a shot runs. The shot
// leaf is switched to Once.
func (t *Tree) AddOneShot(name string, mask skeleton.AnimMask, input, shot NodeID, end ShotEnd, fadeTicks int) (NodeID, error) {
	if err := t.checkInputs(name, input, shot); err != nil {
		return -1, err
	}
	leaf, err := t.nodeOf(shot, KindLeaf)
	if err != nil {
		return -1, err
	}
	leaf.play = Once
	if fadeTicks <= 0 {
		fadeTicks = DefaultFadeTicks
	}
	return t.add(node{kind: KindOneShot, name: name, mask: mask, inputs: []NodeID{input, shot}, shotEnd: end, fadeTicks: fadeTicks}), nil
}

// AddTranslate2 switches between states a and b, playing aToB or bToA in
// between. Both transition leaves are switched to Once.
func (t *Tree) AddTranslate2(name string, mask skeleton.AnimMask, a, b, aToB, bToA NodeID) (NodeID, error) {
	if err := t.checkInputs(name, a, b, aToB, bToA); err != nil {
		return -1, err
	}
	for _, id := range []NodeID{aToB, bToA} {
		leaf, err := t.nodeOf(id, KindLeaf)
		if err != nil {
			return -1, err
		}
		leaf.play = Once
	}
	return t.add(node{kind: KindTranslate2, name: name, mask: mask, inputs: []NodeID{a, b, aToB, bToA}, ratio: DefaultTranslateBlendRatio}), nil
}

// AddBlend9Pos blends a 3x3 grid of inputs laid out row by row from the top
// left:
//
//	(-1, 1)  (0, 1)  (1, 1)
//	(-1, 0)  (0, 0)  (1, 0)
//	(-1,-1)  (0,-1)  (1,-1)
func (t *Tree) AddBlend9Pos(name string, mask skeleton.AnimMask, inputs [9]NodeID) (NodeID, error) {
	if err := t.checkInputs(name, inputs[:]...); err != nil {
		return -1, err
	}
	return t.add(node{kind: KindBlend9Pos, name: name, mask: mask, inputs: append([]NodeID(nil), inputs[:]...)}), nil
}

// AddDirect adds a node that always outputs out.
func (t *Tree) AddDirect(name string, out Output) NodeID {
	id := t.add(node{kind: KindDirect, name: name, mask: out.Mask, keepingEnd: true})
	out.Mask = t.nodes[id].mask
	t.nodes[id].out = out
	return id
}

// SetFinal selects the node Output evaluates.
func (t *Tree) SetFinal(id NodeID) error {
	if _, err := t.nodeOf(id, KindLeaf, KindBlend2, KindBlend3, KindSwitch, KindOneShot, KindTranslate2, KindBlend9Pos, KindDirect); err != nil {
		return err
	}
	t.final = id
	return nil
}

// Tick returns the tick of the last Output.
func (t *Tree) Tick() int {
	return t.tick
}

// Output advances the tree one tick and returns the final node's output.
func (t *Tree) Output() (Output, error) {
	return t.OutputStep(1)
}

// OutputStep is Output advancing leaves by step frames, used to catch up
// after a slow frame.
func (t *Tree) OutputStep(step int) (Output, error) {
	if t.final < 0 {
		return Output{}, ErrNoFinalNode
	}
	t.tick++
	return t.eval(t.final, t.tick, true, step), nil
}

// Pose evaluates the tree for a skeleton instance. A tree without a final
// node poses the skeleton at rest.
func (t *Tree) Pose() (*skeleton.Frame, skeleton.AnimMask) {
	out, err := t.Output()
	if err != nil {
		return nil, nil
	}
	return out.Frame, out.Mask
}

// Kind returns the variant of a node.
func (t *Tree) Kind(id NodeID) (Kind, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidNode, id)
	}
	return t.nodes[id].kind, nil
}

// Len returns the node count.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// SetBlendValue sets the factor of a Blend2 or the value of a Blend3.
func (t *Tree) SetBlendValue(id NodeID, v float32) error {
	n, err := t.nodeOf(id, KindBlend2, KindBlend3)
	if err != nil {
		return err
	}
	if n.kind == KindBlend3 {
		v = clamp(v, -1, 1)
	} else {
		v = clamp(v, 0, 1)
	}
	n.value = v
	return nil
}

// SetFlag drives a Switch or requests a Translate2 state. A Translate2 in
// the middle of a transition ignores the request.
func (t *Tree) SetFlag(id NodeID, flag bool) error {
	n, err := t.nodeOf(id, KindSwitch, KindTranslate2)
	if err != nil {
		return err
	}
	if n.kind == KindSwitch {
		n.flag = flag
		return nil
	}
	if n.translating || n.flag == flag {
		return nil
	}
	n.flag = flag
	n.translating = true
	t.nodes[n.inputs[2]].frame = 0
	t.nodes[n.inputs[3]].frame = 0
	return nil
}

// StartShot starts a OneShot from its first frame.
func (t *Tree) StartShot(id NodeID) error {
	n, err := t.nodeOf(id, KindOneShot)
	if err != nil {
		return err
	}
	n.runShot, n.shotTick, n.blend = true, 0, 0
	return nil
}

// StopShot cuts a running OneShot.
func (t *Tree) StopShot(id NodeID) error {
	n, err := t.nodeOf(id, KindOneShot)
	if err != nil {
		return err
	}
	n.runShot, n.shotTick, n.blend = false, 0, 0
	return nil
}

// ShotRunning reports whether a OneShot is active.
func (t *Tree) ShotRunning(id NodeID) bool {
	n, err := t.nodeOf(id, KindOneShot)
	return err == nil && n.runShot
}

// SetBlendPos sets the grid position of a Blend9Pos, clamped to [-1, 1].
func (t *Tree) SetBlendPos(id NodeID, pos math.Vec2) error {
	n, err := t.nodeOf(id, KindBlend9Pos)
	if err != nil {
		return err
	}
	n.pos = math.Vec2{X: clamp(pos.X, -1, 1), Y: clamp(pos.Y, -1, 1)}
	return nil
}

// SetPlayType changes how a leaf advances.
func (t *Tree) SetPlayType(id NodeID, play PlayType) error {
	n, err := t.nodeOf(id, KindLeaf)
	if err != nil {
		return err
	}
	n.play = play
	return nil
}

// ChangeAnimation swaps a leaf's clip and rewinds it.
func (t *Tree) ChangeAnimation(id NodeID, clip *skeleton.SkeletalAnim) error {
	n, err := t.nodeOf(id, KindLeaf)
	if err != nil {
		return err
	}
	n.clip, n.frame, n.backwards = clip, 0, false
	return nil
}

// ResetFrame rewinds a leaf.
func (t *Tree) ResetFrame(id NodeID) error {
	n, err := t.nodeOf(id, KindLeaf)
	if err != nil {
		return err
	}
	n.frame = 0
	return nil
}

// CurrentFrame returns the frame a leaf outputs next.
func (t *Tree) CurrentFrame(id NodeID) int {
	n, err := t.nodeOf(id, KindLeaf)
	if err != nil {
		return -1
	}
	return n.frame
}

// Ratio returns a leaf's progress through its clip.
func (t *Tree) Ratio(id NodeID) float32 {
	n, err := t.nodeOf(id, KindLeaf)
	if err != nil {
		return 0
	}
	return n.leafRatio()
}

// KeepingEnd reports whether a Once leaf has output its last frame.
func (t *Tree) KeepingEnd(id NodeID) bool {
	n, err := t.nodeOf(id, KindLeaf, KindDirect)
	return err == nil && n.keepingEnd
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
