package pool

// Job はワーカーが一度だけ実行する作業単位
type Job interface {
	Run()
}

// JobFunc は関数を Job として扱うためのアダプタ
type JobFunc func()

// Run は関数を実行する
func (f JobFunc) Run() {
	f()
}
