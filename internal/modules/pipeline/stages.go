package pipeline

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/modules/ai/chat"
)

const analysisInstruction = `You analyse product photos for short-form video ads.
Reply with one JSON object and nothing else:
{"product_name": string, "category": string, "colors": [string], "materials": [string], "key_features": [string], "background": string}
"background" names a plain studio backdrop that flatters the product, for example "white" or "warm beige".`

const scriptInstruction = `You write scripts for vertical product videos of about fifteen seconds.
Reply with one JSON object and nothing else:
{"title": string, "hook": string, "beats": [string], "call_to_action": string}
Each beat is one visual moment, in order.`

const compositionInstruction = `You are a director planning product shots for an image-to-video model.
Reply with one JSON object and nothing else:
{"background": string, "style": string, "shots": [{"framing": string, "movement": string, "focus": string, "duration": number}]}
framing is one of close-up, medium, wide, macro, overhead.
movement is one of static, pan, tilt, zoom-in, zoom-out, orbit, dolly.
focus names the product detail the shot features. duration is seconds, 5 or 10.
Plan at most %d shots.`

func analysisMessages(image string) []chat.Message {
	return []chat.Message{
		chat.SystemMessage(analysisInstruction),
		chat.UserMessage("Analyse this product.", image),
	}
}

func scriptMessages(analysis ProductAnalysis) []chat.Message {
	data, _ := jsoniter.MarshalToString(analysis)
	return []chat.Message{
		chat.SystemMessage(scriptInstruction),
		chat.UserMessage("Product analysis:\n" + data),
	}
}

func compositionMessages(analysis ProductAnalysis, script Script, maxShots int) []chat.Message {
	a, _ := jsoniter.MarshalToString(analysis)
	s, _ := jsoniter.MarshalToString(script)
	return []chat.Message{
		chat.SystemMessage(fmt.Sprintf(compositionInstruction, maxShots)),
		chat.UserMessage("Product analysis:\n" + a + "\n\nScript:\n" + s),
	}
}
