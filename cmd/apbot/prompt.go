package main

import (
	"errors"
	"strings"

	"github.com/chzyer/readline"
)

var errNotInteractive = errors.New("value missing and stdin is not a terminal")

// prompter спрашивает недостающие значения в терминале. Инстанс readline
// создаётся лениво: без вопросов терминал не трогаем.
type prompter struct {
	rl *readline.Instance
}

func newPrompter() *prompter { return &prompter{} }

func (p *prompter) Interactive() bool { return readline.DefaultIsTerminal() }

func (p *prompter) init() error {
	if p.rl != nil {
		return nil
	}
	if !p.Interactive() {
		return errNotInteractive
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return err
	}
	p.rl = rl
	return nil
}

func (p *prompter) Ask(prompt string) (string, error) {
	if err := p.init(); err != nil {
		return "", err
	}
	p.rl.SetPrompt(prompt)
	for {
		line, err := p.rl.Readline()
		if err != nil {
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
}

func (p *prompter) AskPassword(prompt string) (string, error) {
	if err := p.init(); err != nil {
		return "", err
	}
	b, err := p.rl.ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *prompter) Close() {
	if p.rl != nil {
		_ = p.rl.Close()
	}
}
