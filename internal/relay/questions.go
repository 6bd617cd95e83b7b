package relay

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Question is one entry of the verification question bank.
type Question struct {
	Question         string   `yaml:"question"`
	CorrectAnswer    string   `yaml:"correct_answer"`
	IncorrectAnswers []string `yaml:"incorrect_answers"`
}

// DefaultQuestions is the built-in bank, used when no file is configured.
func DefaultQuestions() []Question {
	return []Question{
		{Question: "冰融化后会变成什么？", CorrectAnswer: "水", IncorrectAnswers: []string{"石头", "木头", "火"}},
		{Question: "正常人有几只眼睛？", CorrectAnswer: "2", IncorrectAnswers: []string{"1", "3", "4"}},
		{Question: "1 加 2 等于几？", CorrectAnswer: "3", IncorrectAnswers: []string{"2", "4", "5"}},
		{Question: "5 减 2 等于几？", CorrectAnswer: "3", IncorrectAnswers: []string{"1", "2", "4"}},
		{Question: "在天上飞的交通工具是什么？", CorrectAnswer: "飞机", IncorrectAnswers: []string{"汽车", "轮船", "自行车"}},
		{Question: "晴朗的天空通常是什么颜色的？", CorrectAnswer: "蓝色", IncorrectAnswers: []string{"绿色", "红色", "紫色"}},
	}
}

// LoadQuestionsFile reads a YAML list of questions.
func LoadQuestionsFile(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var qs []Question
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decode questions %s: %w", path, err)
	}
	valid := qs[:0]
	for _, q := range qs {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.CorrectAnswer) == "" {
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("questions file %s has no usable entries", path)
	}
	return valid, nil
}

// pickChallenge selects a random question and returns its options with the
// correct answer shuffled among the incorrect ones.
func pickChallenge(bank []Question) (Question, []string) {
	q := bank[rand.IntN(len(bank))]
	options := make([]string, 0, len(q.IncorrectAnswers)+1)
	options = append(options, q.IncorrectAnswers...)
	options = append(options, q.CorrectAnswer)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return q, options
}

// newChallengeToken is short and opaque; uniqueness only has to hold for the
// 300 s a challenge lives.
func newChallengeToken() string {
	return fmt.Sprintf("%x", rand.Uint64())
}

// callbackAnswerMaxRunes bounds the answer text carried in a button's
// callback payload (the platform limits callback_data to 64 bytes).
const callbackAnswerMaxRunes = 20

func truncateAnswer(s string) string {
	runes := []rune(s)
	if len(runes) <= callbackAnswerMaxRunes {
		return s
	}
	return string(runes[:callbackAnswerMaxRunes])
}
