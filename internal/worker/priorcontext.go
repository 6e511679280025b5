package worker

import (
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/reelhash"
	"github.com/reelscript/reelscript/internal/scriptfmt"
)

const (
	maxPriorScripts = 5
	summaryMaxLen   = 160
	styleBodyMaxLen = 500
)

// BuildPriorContext partitions earlier scripts for the same reel: scripts
// with an identical idea contribute short summaries that steer the
// generator away from repetition, scripts with other ideas contribute full
// bodies as style context.
func BuildPriorContext(scripts []*model.Script, idea string) (sameIdea, otherIdeas []string) {
	norm := reelhash.NormalizeIdea(idea)
	for _, sc := range scripts {
		if len(sameIdea)+len(otherIdeas) >= maxPriorScripts {
			break
		}
		if reelhash.NormalizeIdea(sc.UserIdea) == norm {
			if s := scriptfmt.Summary(sc.ScriptText, summaryMaxLen); s != "" {
				sameIdea = append(sameIdea, s)
			}
			continue
		}
		body := scriptfmt.Parse(sc.ScriptText).Body
		if len(body) > styleBodyMaxLen {
			body = body[:styleBodyMaxLen]
		}
		if body != "" {
			otherIdeas = append(otherIdeas, body)
		}
	}
	return sameIdea, otherIdeas
}
