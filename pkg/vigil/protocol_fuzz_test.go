package vigil

import "testing"

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"kind":"intent","type":"play","session":"s","from":"c"}`))
	f.Add([]byte(`{"kind":"snapshot","type":"timeUpdate","videoId":"1","currentTime":1,"duration":2,"isPlaying":true,"session":"s","from":"p"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, data []byte) {
		env, err := Decode(data)
		if err != nil {
			return
		}
		switch env.Kind {
		case KindIntent:
			if _, err := env.Intent(); err != nil {
				t.Fatalf("validated intent failed to decode: %v", err)
			}
		case KindSnapshot:
			_, errTU := env.TimeUpdate()
			_, errSrc := env.VideoSrcResponse()
			if errTU != nil && errSrc != nil {
				t.Fatalf("validated snapshot failed to decode")
			}
		default:
			t.Fatalf("unexpected kind %q", env.Kind)
		}
	})
}
