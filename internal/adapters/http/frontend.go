package http

import (
	"net/http"
)

// frontendHTML is the browser map client. It forwards gestures to the API
// and replays the surface journal onto a MapLibre map.
const frontendHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>mapcore</title>
    <link rel="stylesheet" href="https://unpkg.com/maplibre-gl@4/dist/maplibre-gl.css">
    <link rel="stylesheet" href="https://unpkg.com/@mapbox/mapbox-gl-draw@1.4.3/dist/mapbox-gl-draw.css">
    <style>
        :root {
            --primary: #2563eb;
            --error: #dc2626;
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --radius: 8px;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            color: var(--text);
            display: grid;
            grid-template-columns: 1fr 320px;
            height: 100vh;
        }
        #map { height: 100%; }
        aside {
            background: var(--bg);
            border-left: 1px solid var(--border);
            padding: 1rem;
            overflow-y: auto;
        }
        h2 { font-size: 0.9rem; text-transform: uppercase; color: var(--muted); margin: 1rem 0 0.5rem; }
        .toolbar { display: flex; gap: 0.5rem; flex-wrap: wrap; }
        button {
            border: 1px solid var(--border);
            background: var(--card);
            border-radius: var(--radius);
            padding: 0.4rem 0.7rem;
            cursor: pointer;
        }
        button.active { background: var(--primary); color: #fff; }
        ul { list-style: none; }
        li { padding: 0.3rem 0; border-bottom: 1px solid var(--border); font-size: 0.9rem; }
        #badge { font-weight: 600; margin-top: 0.5rem; }
        #status { color: var(--muted); font-size: 0.85rem; margin-top: 0.5rem; }
        #status.error { color: var(--error); }
        @media (max-width: 700px) {
            body { grid-template-columns: 1fr; grid-template-rows: 60vh auto; }
            aside { border-left: none; border-top: 1px solid var(--border); }
        }
    </style>
</head>
<body>
    <div id="map"></div>
    <aside>
        <div class="toolbar">
            <button data-mode="select" class="active">Select</button>
            <button data-mode="drawPoint">Point</button>
            <button data-mode="drawPolygon">Polygon</button>
            <button id="roi">Region</button>
        </div>
        <div id="badge"></div>
        <div id="finalize" hidden>
            <input id="roi-name" placeholder="Region name">
            <button id="roi-save">Save</button>
        </div>
        <div id="status"></div>
        <h2>Layers</h2>
        <ul id="layers"></ul>
        <h2>Features</h2>
        <ul id="features"></ul>
    </aside>

    <script src="https://unpkg.com/maplibre-gl@4/dist/maplibre-gl.js"></script>
    <script src="https://unpkg.com/@mapbox/mapbox-gl-draw@1.4.3/dist/mapbox-gl-draw.js"></script>
    <script>
    const api = (path, method = 'GET', body) => fetch('/api/v1' + path, {
        method,
        headers: body ? { 'Content-Type': 'application/json' } : {},
        body: body ? JSON.stringify(body) : undefined,
    }).then(async r => {
        const data = r.status === 204 ? null : await r.json();
        if (!r.ok) throw new Error(data && data.message || r.statusText);
        return data;
    });

    const status = (msg, isError) => {
        const el = document.getElementById('status');
        el.textContent = msg || '';
        el.className = isError ? 'error' : '';
    };

    const map = new maplibregl.Map({
        container: 'map',
        style: 'https://demotiles.maplibre.org/style.json',
        center: [10, 51],
        zoom: 4,
    });
    const draw = new MapboxDraw({ displayControlsDefault: false });
    map.addControl(draw);

    const modes = { select: 'simple_select', drawPoint: 'draw_point', drawPolygon: 'draw_polygon' };
    let seq = 0;

    // Replays one journaled operation. Toolkit overlays are owned by the
    // draw control and only exist on the server for ordering.
    const overlay = id => id === 'draw-fill' || id === 'draw-vertex' || id === 'draw';
    const beforeOf = id => (id && map.getLayer(id)) ? id : undefined;
    const apply = op => {
        switch (op.op) {
        case 'addSource':
            if (overlay(op.id)) return;
            if (op.source.type === 'raster') {
                map.addSource(op.id, { type: 'raster', tiles: [op.source.tile_url], tileSize: 256 });
            } else {
                map.addSource(op.id, { type: 'geojson', data: op.source.data });
            }
            return;
        case 'removeSource': if (map.getSource(op.id)) map.removeSource(op.id); return;
        case 'addLayer':
            if (overlay(op.id)) return;
            map.addLayer({ id: op.layer.id, source: op.layer.source, type: op.layer.type,
                paint: op.layer.paint || {}, layout: op.layer.layout || {} }, beforeOf(op.before));
            return;
        case 'removeLayer': if (map.getLayer(op.id)) map.removeLayer(op.id); return;
        case 'setPaintProperty': if (map.getLayer(op.id)) map.setPaintProperty(op.id, op.property, op.value); return;
        case 'setLayoutProperty': if (map.getLayer(op.id)) map.setLayoutProperty(op.id, op.property, op.value); return;
        case 'moveLayer': if (map.getLayer(op.id) && !overlay(op.id)) map.moveLayer(op.id, beforeOf(op.before)); return;
        case 'setCursor': map.getCanvas().style.cursor = op.cursor === 'default' ? '' : op.cursor; return;
        case 'changeMode': draw.changeMode(modes[op.mode] || 'simple_select'); syncToolbar(op.mode); return;
        case 'deleteAll': draw.deleteAll(); return;
        case 'flyTo': map.flyTo({ center: op.target.center, zoom: op.target.zoom }); return;
        }
    };

    const rebuild = async () => {
        const snap = await api('/surface/snapshot');
        snap.sources.forEach(s => apply({ op: 'addSource', id: s.id, source: s }));
        snap.layers.forEach(l => apply({ op: 'addLayer', id: l.id, layer: l }));
        apply({ op: 'setCursor', cursor: snap.cursor });
        seq = snap.seq;
    };

    const replay = async () => {
        const batch = await api('/surface/ops?since=' + seq);
        if (batch.reset) { location.reload(); return; }
        batch.ops.forEach(op => { try { apply(op); } catch (e) { console.warn(op, e); } });
        seq = batch.next;
    };

    const syncToolbar = mode => document.querySelectorAll('[data-mode]')
        .forEach(b => b.classList.toggle('active', b.dataset.mode === mode));

    const refreshPanels = async () => {
        const [layers, features, state] = await Promise.all([api('/layers'), api('/features'), api('/state')]);
        document.getElementById('layers').innerHTML = layers.layers.slice().reverse()
            .map(l => '<li>' + l.name + ' <small>' + l.kind + '</small></li>').join('');
        document.getElementById('features').innerHTML = features.features
            .map(f => '<li>#' + f.uid + ' ' + f.description + '</li>').join('');
        document.getElementById('badge').textContent = state.draft_badge || '';
        document.getElementById('finalize').hidden = !state.has_draft;
        status(state.loading ? 'Extracting...' : '');
    };

    document.querySelectorAll('[data-mode]').forEach(b => b.addEventListener('click', () =>
        api('/mode', 'PUT', { mode: b.dataset.mode }).catch(e => status(e.message, true))));
    document.getElementById('roi').addEventListener('click', () => api('/roi/open', 'POST'));
    document.getElementById('roi-save').addEventListener('click', () =>
        api('/roi/finalize', 'POST', { name: document.getElementById('roi-name').value })
            .catch(e => status(e.message, true)));
    document.addEventListener('keydown', e => { if (e.key === 'Escape') api('/roi/cancel', 'POST'); });

    map.on('draw.create', e => {
        const geometry = e.features[0].geometry;
        api('/draw-complete', 'POST', geometry).catch(err => status(err.message, true));
    });
    map.on('draw.modechange', e => {
        const mode = Object.keys(modes).find(k => modes[k] === e.mode) || 'select';
        api('/mode', 'PUT', { mode, external: true });
    });

    map.on('load', async () => {
        await rebuild();
        await refreshPanels();
        const events = new EventSource('/api/v1/events');
        events.addEventListener('datastar-patch-signals', async () => {
            await replay();
            await refreshPanels();
        });
    });
    </script>
</body>
</html>`

// handleFrontend serves the browser map client.
func (s *Server) handleFrontend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frontendHTML))
}
