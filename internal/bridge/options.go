package bridge

import "time"

const (
	// DefaultThrottle is the minimum spacing between text-driven flushes.
	DefaultThrottle = 500 * time.Millisecond
	// DefaultReconnectDelay is the fixed wait before re-subscribing.
	DefaultReconnectDelay = 3 * time.Second
)

// Texts are the user-visible strings the engine posts.
type Texts struct {
	Placeholder   string `json:"placeholder" yaml:"placeholder"`
	CreateFailed  string `json:"createFailed" yaml:"createFailed"`
	PromptFailed  string `json:"promptFailed" yaml:"promptFailed"`
	ErrorPrefix   string `json:"errorPrefix" yaml:"errorPrefix"`
	UnknownError  string `json:"unknownError" yaml:"unknownError"`
	EmptyReply    string `json:"emptyReply" yaml:"emptyReply"`
	RunningMarker string `json:"runningMarker" yaml:"runningMarker"`
	DoneMarker    string `json:"doneMarker" yaml:"doneMarker"`
}

// DefaultTexts returns the built-in (Chinese) strings.
func DefaultTexts() Texts {
	return Texts{
		Placeholder:   "思考中...",
		CreateFailed:  "抱歉，创建会话失败，请稍后再试。",
		PromptFailed:  "抱歉，发送消息失败，请稍后再试。",
		ErrorPrefix:   "错误：",
		UnknownError:  "未知错误",
		EmptyReply:    "（无回复）",
		RunningMarker: "⏳",
		DoneMarker:    "✅",
	}
}

// withDefaults fills every empty field from DefaultTexts.
func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Placeholder, d.Placeholder)
	fill(&t.CreateFailed, d.CreateFailed)
	fill(&t.PromptFailed, d.PromptFailed)
	fill(&t.ErrorPrefix, d.ErrorPrefix)
	fill(&t.UnknownError, d.UnknownError)
	fill(&t.EmptyReply, d.EmptyReply)
	fill(&t.RunningMarker, d.RunningMarker)
	fill(&t.DoneMarker, d.DoneMarker)
	return t
}

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	// Agent is passed through to every prompt when set.
	Agent string
	// Model is "providerID/modelID"; an unparsable value is ignored.
	Model string

	Throttle       time.Duration
	ReconnectDelay time.Duration
	Texts          Texts

	// Now is the clock used for throttling.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Throttle <= 0 {
		o.Throttle = DefaultThrottle
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Texts = o.Texts.withDefaults()
	return o
}
