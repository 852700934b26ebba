package mock_scoring

//go:generate -command mockgen go run go.uber.org/mock/mockgen -package=$GOPACKAGE -destination=./mocks.go github.com/quay/cvssadjust/scoring
//go:generate mockgen Scorer
