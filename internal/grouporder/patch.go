package grouporder

// Patch is a partial document update. Only non-nil fields are written, and each
// written field replaces the stored top-level value wholesale. Swapping this for
// per-entity patches later only touches Fields and Apply.
type Patch struct {
	Participants    *[]Participant
	AllFinished     *bool
	SharedItems     *[]SharedCartLine
	OrderPlaced     *bool
	ShowPricesToAll *bool
	Status          *string
}

func participantsPatch(ps []Participant) Patch {
	allFinished := ComputeAllFinished(ps)
	return Patch{Participants: &ps, AllFinished: &allFinished}
}

func sharedItemsPatch(lines []SharedCartLine) Patch {
	return Patch{SharedItems: &lines}
}

func statusPatch(status string) Patch {
	return Patch{Status: &status}
}

// Fields renders the patch as the store's top-level field map.
func (p Patch) Fields() map[string]any {
	fields := make(map[string]any, 6)
	if p.Participants != nil {
		ps := *p.Participants
		if ps == nil {
			ps = []Participant{}
		}
		fields["participants"] = ps
	}
	if p.AllFinished != nil {
		fields["allFinished"] = *p.AllFinished
	}
	if p.SharedItems != nil {
		lines := *p.SharedItems
		if lines == nil {
			lines = []SharedCartLine{}
		}
		fields["sharedItems"] = lines
	}
	if p.OrderPlaced != nil {
		fields["orderPlaced"] = *p.OrderPlaced
	}
	if p.ShowPricesToAll != nil {
		fields["showPricesToAll"] = *p.ShowPricesToAll
	}
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	return fields
}

// Apply replays the patch onto a local copy of the document.
func (p Patch) Apply(o *GroupOrder) {
	if p.Participants != nil {
		o.Participants = cloneParticipants(*p.Participants)
	}
	if p.AllFinished != nil {
		o.AllFinished = *p.AllFinished
	}
	if p.SharedItems != nil {
		o.SharedItems = cloneSharedItems(*p.SharedItems)
	}
	if p.OrderPlaced != nil {
		o.OrderPlaced = *p.OrderPlaced
	}
	if p.ShowPricesToAll != nil {
		o.ShowPricesToAll = *p.ShowPricesToAll
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
}

func (p Patch) empty() bool {
	return p.Participants == nil && p.AllFinished == nil && p.SharedItems == nil &&
		p.OrderPlaced == nil && p.ShowPricesToAll == nil && p.Status == nil
}
