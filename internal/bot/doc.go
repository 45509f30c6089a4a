// Package bot — ядро бота Archipelago: подключение слота и две
// согласованные задачи поверх общего progress.Store.
//
//   - Задача сервера (serverTask) читает пакеты и переносит их в Store:
//     подтверждённые отметки, полученные предметы, статус цели, чат-команды
//     (!bot help|status|missing|items).
//   - Задача решений (playerTask) раз в policy.interval спрашивает Policy,
//     отправляет LocationChecks и один раз сообщает GOAL, после чего
//     срабатывает goal.Trigger.
//
// Прогресс сохраняется после каждой содержательной мутации, так что
// перезапуск на том же сиде продолжает с того же места.
//
// Жизненный цикл:
//
//	s, err := bot.Bootstrap(ctx, cfg, repo)
//	if err != nil { log.Fatal(err) }
//	defer s.Close()
//
//	out, err := s.Run(ctx)
//	// out.Goal == false и err == nil — соединение закрылось раньше цели
//
// Завершение: разрыв соединения останавливает задачу решений; при
// exit_on_goal соединение закрывается через goal_grace после цели.
package bot
