package syncer

// Window is the inclusive range of heights prepared by one cycle.
type Window struct {
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Certain bool   `json:"certain"`
}

func (w Window) Empty() bool {
	return w.From > w.To
}

func (w Window) Len() uint64 {
	if w.Empty() {
		return 0
	}
	return w.To - w.From + 1
}

// window bounds the next batch by the batch unit and the chain tip. The batch is certain
// when it ends strictly below the fork window.
func window(from, chainHeight, batchUnit, forkWindow uint64) Window {
	to := from + batchUnit - 1
	if to < from {
		to = ^uint64(0)
	}
	if to > chainHeight {
		to = chainHeight
	}
	if from > chainHeight {
		return Window{From: from, To: chainHeight}
	}
	return Window{From: from, To: to, Certain: isCertain(to, chainHeight, forkWindow)}
}

func isCertain(height, chainHeight, forkWindow uint64) bool {
	if chainHeight < forkWindow {
		return false
	}
	return height+1 < chainHeight-forkWindow
}
