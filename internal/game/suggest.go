package game

// Suggest returns the first code, in palette order, that is consistent with
// every attempt in history: scoring each past guess against the candidate as
// if it were the secret must reproduce the recorded feedback.
// It returns nil when no candidate fits.
func Suggest(history []Attempt, slotCount int) Code {
	if ValidSlotCount(slotCount) != nil {
		return nil
	}
	idx := make([]int, slotCount)
	candidate := make(Code, slotCount)
	for {
		for i, j := range idx {
			candidate[i] = Palette[j]
		}
		if consistent(candidate, history) {
			return candidate.Clone()
		}

		// advance the odometer
		pos := slotCount - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(Palette) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return nil
		}
	}
}

func consistent(candidate Code, history []Attempt) bool {
	for _, a := range history {
		if Score(candidate, a.Guess) != a.Feedback {
			return false
		}
	}
	return true
}
