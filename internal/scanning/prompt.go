package scanning

// ocrPrompt asks a vision model for a plain transcription of the receipt
const ocrPrompt = `Transcribe all text printed on this receipt exactly as it appears, line by line.
Keep numbers, prices and dates unchanged. Do not summarize, translate or add commentary.
Return only the transcribed text.`

// structurePrompt is the shared prompt used by all LLM providers to structure receipt text.
// The field names are the payload contract consumed by the normalizer.
const structurePrompt = `Extrae la siguiente informacion de un recibo. Los datos deben ser devueltos en formato JSON.

El JSON debe tener la siguiente estructura:

{
  "fecha": "fecha del recibo en formato dd/mm/aaaa",
  "productos": [
    {
      "nombre": "nombre del producto",
      "cantidad": cantidad del producto (int),
      "precio_unitario": precio unitario del producto (float)
    }
  ],
  "total_general": precio total del recibo (float)
}

Instrucciones:
- Si un producto no tiene cantidad explicita (por ejemplo "la serenisima $19.00"), asume que la cantidad es 1.
- Si el formato es "2x $19.00", la cantidad es 2 y el precio unitario es 19.00.
- Para la fecha, usa el formato dd/mm/aaaa.
- Los numeros deben ser numeros decimales simples, sin separadores de miles ni simbolos de moneda.
- Si no encuentras un campo, usa null.
- No incluyas texto antes o despues del JSON ni bloques de codigo markdown.

Texto del recibo:
`
