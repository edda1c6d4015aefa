package objects

// RotationResult reports a bulk re-encryption pass. Each entity is
// atomically old-format or new-format; failed entities stay readable
// under the old key.
type RotationResult struct {
	TopicsRotated  int      `json:"topics_rotated"`
	AnchorsRotated int      `json:"anchors_rotated"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors,omitempty"`
}

// ArchiveResult reports an export of sealed rows to the archive target.
type ArchiveResult struct {
	Name    string `json:"name"`
	Topics  int    `json:"topics"`
	Anchors int    `json:"anchors"`
}

// DrainResult reports one opportunistic drain pass.
type DrainResult struct {
	Drained int `json:"drained"`
	Failed  int `json:"failed"`
	Left    int `json:"left"`
}
