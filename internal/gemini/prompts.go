package gemini

import (
	"fmt"
	"strings"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

const documentPrompt = `Analizza questo documento e estrai le informazioni in formato JSON.
Schema richiesto:
{
  "document_type": "bolletta" | "fattura" | "multa" | "ricevuta" | "altro",
  "reason": "descrizione breve (es. 'Bolletta Enel Energia' o 'Multa ZTL')",
  "due_date": "data scadenza in formato ISO 8601 YYYY-MM-DD (null se non presente)",
  "amount": numero decimale importo in euro (null se non presente)
}

Rispondi SOLO con il JSON, senza markdown o spiegazioni.`

const chatRules = `Tu sei un assistente per la creazione di eventi. Hai a disposizione queste funzioni:
- update_event_details(): aggiorna i campi dell'evento nel form di creazione
- request_save(): segnala che l'utente vuole salvare l'evento
- highlight_upload(): segnala che l'utente vuole caricare un documento
- search_events(): cerca tra gli eventi esistenti dell'utente
- open_event(): apre un evento esistente per la modifica

REGOLE:
1. Se l'utente dice "inserisci", "crea", "aggiungi", "nuovo evento" con dei dettagli, chiama update_event_details() con i campi estratti.
2. Se l'utente dice "salva", "ok così", "conferma", chiama request_save().
3. Se l'utente fa una domanda sui suoi eventi, chiama search_events() oppure rispondi usando gli eventi elencati sopra.
4. Se l'utente vuole aprire o modificare un evento trovato, chiama open_event() con il riferimento (id oppure numero del risultato).
5. Dopo aver aggiornato i campi, chiedi sempre le informazioni ancora mancanti (titolo, data di inizio, categoria).
6. Rispondi sempre in modo breve e naturale.`

// chatSystemInstruction assembles the system prompt: rules, the category set,
// the current draft snapshot and a summary of the user's events for
// question answering. Mirrors the shape the web app sent to the model.
func chatSystemInstruction(categories []domain.Category, snapshot domain.DraftEvent, events []domain.PersistedEvent) string {
	var b strings.Builder
	b.WriteString(chatRules)

	if len(categories) > 0 {
		b.WriteString("\n\nCATEGORIE DISPONIBILI (usa l'id per category_id):\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Name)
		}
	}

	b.WriteString("\n\nSTATO ATTUALE DEL FORM:\n")
	b.WriteString(snapshotSummary(snapshot))

	if len(events) > 0 {
		b.WriteString("\n\nEVENTI DELL'UTENTE (per rispondere a domande):\n")
		for i, ev := range events {
			title := ev.Title
			if title == "" {
				title = "Senza titolo"
			}
			fmt.Fprintf(&b, "%d. %s - %s", i+1, title, ev.Start.Format("2006-01-02 15:04"))
			if ev.Amount != nil {
				fmt.Fprintf(&b, " - €%.2f", *ev.Amount)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func snapshotSummary(d domain.DraftEvent) string {
	var lines []string
	if d.Title != "" {
		lines = append(lines, "titolo: "+d.Title)
	}
	if d.Start != nil {
		lines = append(lines, "inizio: "+d.Start.Format(time.RFC3339))
	}
	if d.End != nil {
		lines = append(lines, "fine: "+d.End.Format(time.RFC3339))
	}
	if d.Amount != nil {
		lines = append(lines, fmt.Sprintf("importo: %.2f", *d.Amount))
	}
	if d.CategoryID != nil {
		lines = append(lines, "categoria: "+d.CategoryID.String())
	}
	if d.Description != "" {
		lines = append(lines, "descrizione: "+d.Description)
	}
	if len(lines) == 0 {
		return "(vuoto)"
	}
	return strings.Join(lines, "\n")
}

func chatFunctions() []functionDeclaration {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "STRING", "description": desc}
	}
	return []functionDeclaration{
		{
			Name:        "update_event_details",
			Description: "Aggiorna i dettagli dell'evento nel form di creazione",
			Parameters: map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"title":          str("Titolo evento"),
					"start_datetime": str("Data/ora inizio ISO 8601"),
					"end_datetime":   str("Data/ora fine ISO 8601"),
					"amount":         map[string]any{"type": "NUMBER", "description": "Importo in euro"},
					"category_id":    str("ID categoria"),
					"description":    str("Descrizione"),
					"recurrence":     str("Ricorrenza: none, daily, weekly, monthly, yearly"),
				},
			},
		},
		{
			Name:        "request_save",
			Description: "L'utente ha confermato e vuole salvare l'evento",
			Parameters:  map[string]any{"type": "OBJECT", "properties": map[string]any{}},
		},
		{
			Name:        "highlight_upload",
			Description: "L'utente vuole caricare un documento da analizzare",
			Parameters:  map[string]any{"type": "OBJECT", "properties": map[string]any{}},
		},
		{
			Name:        "search_events",
			Description: "Cerca tra gli eventi esistenti dell'utente",
			Parameters: map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"query":        str("Testo da cercare"),
					"source_types": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
					"top_k":        map[string]any{"type": "NUMBER", "description": "Numero massimo di risultati"},
				},
			},
		},
		{
			Name:        "open_event",
			Description: "Apre un evento esistente per la modifica",
			Parameters: map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"reference": str("ID evento oppure numero del risultato di ricerca (1 = il primo)"),
				},
			},
		},
	}
}
