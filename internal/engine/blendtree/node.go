package blendtree

import (
	stdmath "math"

	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
)

// eval returns the output of node id for tick, computing it at most once per
// tick. run=false rewinds leaves below the node.
func (t *Tree) eval(id NodeID, tick int, run bool, step int) Output {
	n := &t.nodes[id]
	if n.kind == KindDirect || n.lastTick == tick {
		return n.out
	}
	n.lastTick = tick

	switch n.kind {
	case KindLeaf:
		n.out = t.evalLeaf(n, run, step)
	case KindBlend2:
		a := t.eval(n.inputs[0], tick, run, step)
		b := t.eval(n.inputs[1], tick, run, step)
		n.out = Blend(a, b, n.value, n.mask)
	case KindBlend3:
		mid := t.eval(n.inputs[0], tick, run, step)
		if n.value > 0 {
			n.out = Blend(mid, t.eval(n.inputs[1], tick, run, step), n.value, n.mask)
		} else {
			n.out = Blend(mid, t.eval(n.inputs[2], tick, run, step), -n.value, n.mask)
		}
	case KindSwitch:
		a := t.eval(n.inputs[0], tick, run, step)
		b := t.eval(n.inputs[1], tick, run, step)
		d := 1 / float32(n.switchTicks)
		if !n.flag {
			d = -d
		}
		n.blend = clamp(n.blend+d, 0, 1)
		n.out = Blend(a, b, n.blend, n.mask)
	case KindOneShot:
		n.out = t.evalOneShot(n, tick, run, step)
	case KindTranslate2:
		n.out = t.evalTranslate2(n, tick, run, step)
	case KindBlend9Pos:
		n.out = t.evalBlend9Pos(n, tick, run, step)
	}
	return n.out
}

func (t *Tree) evalLeaf(n *node, run bool, step int) Output {
	length := 0
	if n.clip != nil {
		length = n.clip.Len()
	}
	if length == 0 {
		n.keepingEnd = true
		return Output{Frame: skeleton.NewFrame(t.boneCount), Mask: n.mask}
	}
	if !run {
		n.frame, n.backwards, n.keepingEnd = 0, false, false
		return Output{Frame: n.clip.Frame(0), Mask: n.mask}
	}

	out := Output{Frame: n.clip.Frame(n.frame), Mask: n.mask}
	switch n.play {
	case Loop:
		n.frame = (n.frame + step) % length
	case Once:
		n.keepingEnd = n.frame == length-1
		n.frame += step
		if n.frame > length-1 {
			n.frame = length - 1
		}
	case PingPong:
		if length == 1 {
			n.frame = 0
			break
		}
		if n.backwards {
			n.frame -= step
			if n.frame <= 0 {
				n.frame, n.backwards = 0, false
			}
		} else {
			n.frame += step
			if n.frame >= length-1 {
				n.frame, n.backwards = length-1, true
			}
		}
	}
	return out
}

func (n *node) leafRatio() float32 {
	if n.clip == nil || n.clip.Len() == 0 {
		return 0
	}
	return float32(n.frame) / float32(n.clip.Len())
}

func (t *Tree) evalOneShot(n *node, tick int, run bool, step int) Output {
	input := t.eval(n.inputs[0], tick, run, step)
	shot := t.eval(n.inputs[1], tick, n.runShot, step)
	leaf := &t.nodes[n.inputs[1]]

	if !run {
		n.shotTick = 0
	} else if n.runShot {
		switch n.shotEnd {
		case Recover:
			if leaf.keepingEnd {
				n.shotTick--
			} else {
				n.shotTick++
			}
			if n.shotTick > n.fadeTicks {
				n.shotTick = n.fadeTicks
			}
			if n.shotTick < 0 {
				n.shotTick = 0
			}
		case Keep:
			if leaf.keepingEnd {
				n.shotTick = n.fadeTicks
			} else if n.shotTick < n.fadeTicks {
				n.shotTick++
			}
		}
	}
	n.blend = float32(n.shotTick) / float32(n.fadeTicks)
	n.runShot = n.shotTick != 0
	return Blend(input, shot, n.blend, n.mask)
}

// translateBlend is the fade weight of a transition clip at ratio r: it fades
// in over the first TranslateBlendRatio and out over the last.
func translateBlend(r, edge float32) float32 {
	switch {
	case r < edge:
		return r / edge
	case 1-r < edge:
		return (1 - r) / edge
	}
	return 1
}

func (t *Tree) evalTranslate2(n *node, tick int, run bool, step int) Output {
	if !n.translating {
		in := n.inputs[0]
		if n.flag {
			in = n.inputs[1]
		}
		out := t.eval(in, tick, run, step)
		return Output{Frame: out.Frame, Mask: n.mask}
	}

	from, to, trans := n.inputs[0], n.inputs[1], n.inputs[2]
	if !n.flag {
		from, to, trans = n.inputs[1], n.inputs[0], n.inputs[3]
	}
	leaf := &t.nodes[trans]
	ratio := leaf.leafRatio()
	tr := t.eval(trans, tick, run, step)
	w := translateBlend(ratio, n.ratio)

	var out Output
	if ratio < n.ratio {
		out = Blend(t.eval(from, tick, run, step), tr, w, n.mask)
	} else {
		out = Blend(tr, t.eval(to, tick, run, step), 1-w, n.mask)
	}
	if leaf.keepingEnd {
		n.translating = false
	}
	return out
}

func (t *Tree) evalBlend9Pos(n *node, tick int, run bool, step int) Output {
	// Grid column from x, row from y, top row first.
	col := float64(n.pos.X) + 1
	row := 1 - float64(n.pos.Y)
	c0 := int(stdmath.Min(stdmath.Floor(col), 1))
	r0 := int(stdmath.Min(stdmath.Floor(row), 1))
	fx := float32(col) - float32(c0)
	fy := float32(row) - float32(r0)
	if fx == 1 {
		c0, fx = c0+1, 0
	}
	if fy == 1 {
		r0, fy = r0+1, 0
	}

	at := func(r, c int) Output {
		return t.eval(n.inputs[r*3+c], tick, run, step)
	}
	if fx == 0 && fy == 0 {
		out := at(r0, c0)
		return Output{Frame: out.Frame, Mask: n.mask}
	}
	top := at(r0, c0)
	if fx != 0 {
		top = Blend(top, at(r0, c0+1), fx, n.mask)
	}
	if fy == 0 {
		return Output{Frame: top.Frame, Mask: n.mask}
	}
	bottom := at(r0+1, c0)
	if fx != 0 {
		bottom = Blend(bottom, at(r0+1, c0+1), fx, n.mask)
	}
	return Blend(top, bottom, fy, n.mask)
}
